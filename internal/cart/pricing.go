package cart

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bakeryshop/internal/model"
)

var (
	taxRate               = decimal.RequireFromString("0.18")
	freeShippingThreshold = decimal.NewFromInt(100)
	oversizedShipping     = decimal.NewFromInt(35)
	standardShipping      = decimal.NewFromInt(20)
)

var oversizedMarkers = []string{"oversized", "cake", "pasta"}

// Summary содержит производные итоги корзины.
type Summary struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	FinalTotal   decimal.Decimal `json:"final_total"`
	TotalItems   int             `json:"total_items"`
}

// Summary рассчитывает налог, доставку и итог к оплате.
func (c *Cart) Summary() Summary {
	oversized := slices.ContainsFunc(c.items, func(l LineItem) bool { return l.Oversized })
	shipping := ShippingCost(c.subtotal, oversized)
	tax := Tax(c.subtotal)

	return Summary{
		Subtotal:     c.subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		FinalTotal:   c.subtotal.Add(tax).Add(shipping),
		TotalItems:   c.totalItems,
	}
}

// UnitPrice возвращает цену единицы: базовая цена плюс надбавки выбранных опций.
// Надбавка может быть отрицательной.
func UnitPrice(base decimal.Decimal, variant []model.VariantSelection) decimal.Decimal {
	price := base
	for _, v := range variant {
		price = price.Add(v.PriceModifier)
	}
	return price
}

// Tax возвращает налог 18% от суммы без округления. До копеек сумма округляется при сохранении заказа.
func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(taxRate)
}

// ShippingCost возвращает стоимость доставки. От 100 доставка бесплатна
// независимо от габаритов.
func ShippingCost(subtotal decimal.Decimal, oversized bool) decimal.Decimal {
	switch {
	case subtotal.GreaterThanOrEqual(freeShippingThreshold):
		return decimal.Zero
	case oversized:
		return oversizedShipping
	default:
		return standardShipping
	}
}

// IsOversized проверяет теги, категорию, флаг опции, данные доставки и название товара.
func IsOversized(p model.Product, variant []model.VariantSelection) bool {
	for _, tag := range p.Tags {
		if slices.Contains(oversizedMarkers, strings.ToLower(strings.TrimSpace(tag))) {
			return true
		}
	}
	if slices.Contains(oversizedMarkers, strings.ToLower(p.Category)) {
		return true
	}
	if slices.ContainsFunc(variant, func(v model.VariantSelection) bool { return v.Oversized }) {
		return true
	}
	if p.Shipping.Oversized {
		return true
	}

	name := strings.ToLower(p.Name)
	return strings.Contains(name, "pasta") || strings.Contains(name, "cake")
}
