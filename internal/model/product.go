package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product описывает снимок товара из каталога, который получает корзина.
type Product struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Price    decimal.Decimal  `json:"price"`
	Stock    int              `json:"stock"`
	Category string           `json:"category,omitempty"`
	Tags     []string         `json:"tags,omitempty"`
	Shipping ShippingInfo     `json:"shipping"`
	Variants []ProductVariant `json:"variants,omitempty"`
}

// ShippingInfo содержит явные данные о доставке товара.
type ShippingInfo struct {
	Oversized bool `json:"oversized"`
}

// ProductVariant описывает вариант товара (например, размер) и его опции.
type ProductVariant struct {
	Name    string          `json:"name"`
	Options []VariantOption `json:"options"`
}

// VariantOption описывает одну опцию варианта с надбавкой к цене.
type VariantOption struct {
	Name          string          `json:"name"`
	PriceModifier decimal.Decimal `json:"price_modifier"`
	Oversized     bool            `json:"oversized,omitempty"`
}

// VariantSelection описывает выбранную покупателем опцию варианта.
type VariantSelection struct {
	VariantName   string          `json:"variant_name"`
	OptionName    string          `json:"option_name"`
	PriceModifier decimal.Decimal `json:"price_modifier"`
	Oversized     bool            `json:"oversized,omitempty"`
}

// ResolveSelection находит опцию варианта по именам и возвращает выбор с надбавкой из каталога.
func (p Product) ResolveSelection(variantName, optionName string) (VariantSelection, bool) {
	for _, v := range p.Variants {
		if !strings.EqualFold(v.Name, variantName) {
			continue
		}
		for _, o := range v.Options {
			if strings.EqualFold(o.Name, optionName) {
				return VariantSelection{
					VariantName:   v.Name,
					OptionName:    o.Name,
					PriceModifier: o.PriceModifier,
					Oversized:     o.Oversized,
				}, true
			}
		}
	}
	return VariantSelection{}, false
}
