package loyalty

import (
	"crypto/rand"
	"fmt"
)

const (
	// RewardCodePrefix — постоянный префикс кода награды.
	RewardCodePrefix = "RWD"

	rewardCodeLength = 8
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewRewardCode генерирует код вида RWD-XXXXXXXX из заглавных латинских букв и цифр.
func NewRewardCode() (string, error) {
	const limit = 256 - 256%len(codeAlphabet)

	out := make([]byte, 0, rewardCodeLength)
	buf := make([]byte, rewardCodeLength*2)
	for len(out) < rewardCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			// отбрасываем хвост диапазона, чтобы не было смещения распределения
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == rewardCodeLength {
				break
			}
		}
	}

	return RewardCodePrefix + "-" + string(out), nil
}
