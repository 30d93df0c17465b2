package loyalty

import "github.com/mmeshcher/bakeryshop/internal/model"

// strategy рассчитывает следующее состояние прогресса и сообщает, выдаётся ли награда.
type strategy interface {
	next(cur model.UserLoyaltyProgress, exists bool, required int) (model.UserLoyaltyProgress, bool)
}

func reached(count, required int) bool {
	return count >= required
}

// purchaseStrategy увеличивает счётчик на единицу и сбрасывает его при достижении порога.
type purchaseStrategy struct{}

func (purchaseStrategy) next(cur model.UserLoyaltyProgress, exists bool, required int) (model.UserLoyaltyProgress, bool) {
	if !exists {
		cur = model.UserLoyaltyProgress{}
	}

	count := cur.CurrentCount + 1
	if reached(count, required) {
		cur.CurrentCount = 0
		cur.CompletedCount++
		return cur, true
	}

	cur.CurrentCount = count
	return cur, false
}

// reviewStrategy выставляет счётчик в число проверенных отзывов. Награда выдаётся только
// при переходе через порог, сброса нет.
type reviewStrategy struct {
	verified int
}

func (s reviewStrategy) next(cur model.UserLoyaltyProgress, exists bool, required int) (model.UserLoyaltyProgress, bool) {
	if !exists {
		cur = model.UserLoyaltyProgress{}
	}

	prev := cur.CurrentCount
	// проверка отзыва необратима, поэтому устаревший подсчёт не уменьшает счётчик
	count := max(s.verified, prev)

	minted := reached(count, required) && !reached(prev, required)
	if minted {
		cur.CompletedCount++
	}
	cur.CurrentCount = count
	return cur, minted
}
