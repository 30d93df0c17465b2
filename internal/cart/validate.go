package cart

// StockLevels — текущие остатки товаров по идентификатору.
type StockLevels map[int64]int

// LineProblem описывает позицию, количество которой превышает остаток.
type LineProblem struct {
	LineID    string `json:"line_id"`
	ProductID int64  `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// ValidationResult — итог проверки корзины по актуальным остаткам.
type ValidationResult struct {
	Valid    bool          `json:"valid"`
	Problems []LineProblem `json:"problems,omitempty"`
}

// LineIDs возвращает идентификаторы проблемных позиций.
func (r ValidationResult) LineIDs() []string {
	ids := make([]string, 0, len(r.Problems))
	for _, p := range r.Problems {
		ids = append(ids, p.LineID)
	}
	return ids
}

// Validate сверяет каждую позицию с актуальным остатком. Отсутствующий товар считается
// закончившимся.
func (c *Cart) Validate(stock StockLevels) ValidationResult {
	res := ValidationResult{Valid: true}
	for _, l := range c.items {
		available := stock[l.ProductID]
		if l.Quantity > available {
			res.Valid = false
			res.Problems = append(res.Problems, LineProblem{
				LineID:    l.ID,
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Available: available,
			})
		}
	}
	return res
}
