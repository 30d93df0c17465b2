// Package cart реализует корзину покупателя: объединение позиций и расчёт итогов.
package cart

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bakeryshop/internal/model"
)

var (
	// ErrValidation возвращается для некорректных входных данных операции с корзиной.
	ErrValidation = errors.New("invalid cart input")
	// ErrStockExceeded возвращается, если запрошено больше товара, чем есть на складе.
	ErrStockExceeded = errors.New("stock exceeded")
	// ErrLineNotFound возвращается, если позиция корзины не найдена.
	ErrLineNotFound = errors.New("cart line not found")
)

// StockExceededError сообщает вызывающему максимально допустимое количество.
type StockExceededError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Is позволяет сравнивать ошибку с ErrStockExceeded через errors.Is.
func (e *StockExceededError) Is(target error) bool {
	return target == ErrStockExceeded
}

// LineItem — позиция корзины. Для пары (ProductID, VariantSignature) существует не более одной позиции.
type LineItem struct {
	ID               string                   `json:"id"`
	ProductID        int64                    `json:"product_id"`
	Name             string                   `json:"name"`
	Variant          []model.VariantSelection `json:"variant,omitempty"`
	VariantSignature string                   `json:"variant_signature,omitempty"`
	Quantity         int                      `json:"quantity"`
	MaxQuantity      int                      `json:"max_quantity"`
	UnitPrice        decimal.Decimal          `json:"unit_price"`
	Notes            string                   `json:"notes,omitempty"`
	Oversized        bool                     `json:"oversized,omitempty"`
}

// Total возвращает стоимость позиции.
func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// AddResult описывает результат добавления товара.
type AddResult struct {
	LineID   string
	Quantity int
	// Capped выставляется, когда количество упёрлось в MaxQuantity позиции.
	Capped bool
	// Rejected — количество, которое не поместилось в позицию.
	Rejected int
	// OpenCart — сигнал интерфейсу открыть корзину.
	OpenCart bool
}

// Cart хранит позиции в порядке добавления и пересчитывает итоги после каждой мутации.
type Cart struct {
	items      []LineItem
	subtotal   decimal.Decimal
	totalItems int
	newID      func() string
}

// New создаёт пустую корзину.
func New() *Cart {
	return &Cart{newID: uuid.NewString}
}

// Add добавляет товар в корзину, объединяя его с существующей позицией того же варианта.
func (c *Cart) Add(p model.Product, quantity float64, variant []model.VariantSelection) (AddResult, error) {
	if p.ID == 0 {
		return AddResult{}, fmt.Errorf("%w: product id is required", ErrValidation)
	}

	q, err := normalizeQuantity(quantity)
	if err != nil {
		return AddResult{}, err
	}
	if q < 1 {
		return AddResult{}, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if q > p.Stock {
		return AddResult{}, &StockExceededError{ProductID: p.ID, Requested: q, Available: p.Stock}
	}

	sig := Signature(variant)
	res := AddResult{OpenCart: true}

	if i := c.find(p.ID, sig); i >= 0 {
		line := &c.items[i]
		want := line.Quantity + q
		if want > line.MaxQuantity {
			res.Capped = true
			res.Rejected = want - line.MaxQuantity
			want = line.MaxQuantity
		}
		line.Quantity = want
		res.LineID = line.ID
		res.Quantity = want
	} else {
		line := LineItem{
			ID:               c.newID(),
			ProductID:        p.ID,
			Name:             p.Name,
			Variant:          slices.Clone(variant),
			VariantSignature: sig,
			Quantity:         q,
			MaxQuantity:      p.Stock,
			UnitPrice:        UnitPrice(p.Price, variant),
			Oversized:        IsOversized(p, variant),
		}
		c.items = append(c.items, line)
		res.LineID = line.ID
		res.Quantity = q
	}

	c.recalculate()
	return res, nil
}

// UpdateQuantity заменяет количество позиции. Ноль удаляет позицию.
func (c *Cart) UpdateQuantity(lineID string, quantity float64) error {
	q, err := normalizeQuantity(quantity)
	if err != nil {
		return err
	}
	if q < 0 {
		q = 0
	}

	i := c.indexOf(lineID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
	}

	if q == 0 {
		c.items = slices.Delete(c.items, i, i+1)
	} else {
		c.items[i].Quantity = q
	}

	c.recalculate()
	return nil
}

// Remove удаляет позицию и сообщает, была ли она в корзине.
func (c *Cart) Remove(lineID string) bool {
	i := c.indexOf(lineID)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	c.recalculate()
	return true
}

// UpdateNotes задаёт комментарий к позиции, не меняя итогов.
func (c *Cart) UpdateNotes(lineID, notes string) error {
	i := c.indexOf(lineID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
	}
	c.items[i].Notes = notes
	return nil
}

// Clear возвращает корзину в пустое состояние.
func (c *Cart) Clear() {
	c.items = nil
	c.recalculate()
}

// Items возвращает копию позиций в порядке добавления.
func (c *Cart) Items() []LineItem {
	return slices.Clone(c.items)
}

// Len возвращает количество позиций.
func (c *Cart) Len() int {
	return len(c.items)
}

// Subtotal возвращает сумму стоимости позиций.
func (c *Cart) Subtotal() decimal.Decimal {
	return c.subtotal
}

// TotalItems возвращает суммарное количество единиц товара.
func (c *Cart) TotalItems() int {
	return c.totalItems
}

func (c *Cart) recalculate() {
	subtotal := decimal.Zero
	total := 0
	for _, l := range c.items {
		subtotal = subtotal.Add(l.Total())
		total += l.Quantity
	}
	c.subtotal = subtotal
	c.totalItems = total
}

func (c *Cart) find(productID int64, sig string) int {
	return slices.IndexFunc(c.items, func(l LineItem) bool {
		return l.ProductID == productID && l.VariantSignature == sig
	})
}

func (c *Cart) indexOf(lineID string) int {
	return slices.IndexFunc(c.items, func(l LineItem) bool {
		return l.ID == lineID
	})
}

func normalizeQuantity(q float64) (int, error) {
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, fmt.Errorf("%w: quantity is not a number", ErrValidation)
	}
	f := math.Floor(q)
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: quantity is too large", ErrValidation)
	}
	return int(f), nil
}

// Signature сериализует выбор вариантов в ключ объединения позиций.
// Порядок выбора не влияет на результат.
func Signature(variant []model.VariantSelection) string {
	if len(variant) == 0 {
		return ""
	}

	type pair struct {
		Variant string `json:"v"`
		Option  string `json:"o"`
	}
	pairs := make([]pair, 0, len(variant))
	for _, v := range variant {
		pairs = append(pairs, pair{Variant: v.VariantName, Option: v.OptionName})
	}
	slices.SortFunc(pairs, func(a, b pair) int {
		return cmp.Or(cmp.Compare(a.Variant, b.Variant), cmp.Compare(a.Option, b.Option))
	})

	data, _ := json.Marshal(pairs)
	return string(data)
}
