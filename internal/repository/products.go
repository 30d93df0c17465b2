package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmeshcher/bakeryshop/internal/model"
)

// GetProductsByIDs возвращает активные товары каталога по идентификаторам.
// Отсутствующие и снятые с продажи товары в результат не попадают.
func (r *PostgresRepository) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price_cents, stock, category, tags, oversized, variants
		 FROM products
		 WHERE id = ANY($1) AND is_active`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", unavailable(err))
	}
	defer rows.Close()

	res := make(map[int64]model.Product, len(ids))
	for rows.Next() {
		var (
			p          model.Product
			priceCents int64
			variants   []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &priceCents, &p.Stock, &p.Category, &p.Tags, &p.Shipping.Oversized, &variants); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}

		p.Price = fromCents(priceCents)
		if len(variants) > 0 {
			if err := json.Unmarshal(variants, &p.Variants); err != nil {
				return nil, fmt.Errorf("decode variants of product %d: %w", p.ID, err)
			}
		}

		res[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
