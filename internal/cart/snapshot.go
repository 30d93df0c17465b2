package cart

import (
	"fmt"
	"slices"
)

// Snapshot — сериализуемое состояние корзины для внешнего хранилища.
type Snapshot struct {
	Items []LineItem `json:"items"`
}

// Snapshot возвращает текущее состояние корзины.
func (c *Cart) Snapshot() Snapshot {
	return Snapshot{Items: c.Items()}
}

// Restore создаёт корзину из сохранённого состояния. Ключ объединения пересчитывается
// по вариантам, количество ограничивается MaxQuantity, дубликаты сливаются.
func Restore(s Snapshot) (*Cart, error) {
	c := New()
	for _, l := range s.Items {
		if l.ProductID == 0 || l.ID == "" || l.MaxQuantity < 1 {
			return nil, fmt.Errorf("%w: malformed line in snapshot", ErrValidation)
		}
		if l.Quantity < 1 {
			continue
		}
		l.VariantSignature = Signature(l.Variant)
		l.Quantity = min(l.Quantity, l.MaxQuantity)

		if i := c.find(l.ProductID, l.VariantSignature); i >= 0 {
			merged := &c.items[i]
			merged.Quantity = min(merged.Quantity+l.Quantity, merged.MaxQuantity)
			continue
		}
		l.Variant = slices.Clone(l.Variant)
		c.items = append(c.items, l)
	}
	c.recalculate()
	return c, nil
}
