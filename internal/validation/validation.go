// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"
	"unicode"
)

const (
	orderPrefix  = "ORD-"
	rewardPrefix = "RWD-"
	rewardLength = 8
)

// IsValidOrderNumber проверяет формат номера заказа ORD-<цифры>.
func IsValidOrderNumber(number string) bool {
	digits, ok := strings.CutPrefix(number, orderPrefix)
	return ok && isDigits(digits)
}

// IsValidRewardCode проверяет формат кода награды RWD-XXXXXXXX (заглавные латинские буквы и цифры).
func IsValidRewardCode(code string) bool {
	body, ok := strings.CutPrefix(code, rewardPrefix)
	if !ok || len(body) != rewardLength {
		return false
	}

	for i := 0; i < len(body); i++ {
		ch := body[i]
		if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') {
			return false
		}
	}
	return true
}

// IsValidPhone допускает ведущий плюс, пробелы, дефисы и скобки; цифр от 7 до 15.
func IsValidPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false
	}

	digits := 0
	for i, ch := range phone {
		switch {
		case unicode.IsDigit(ch):
			digits++
		case ch == '+' && i == 0:
		case ch == ' ' || ch == '-' || ch == '(' || ch == ')':
		default:
			return false
		}
	}

	return digits >= 7 && digits <= 15
}

// IsValidEmail проверяет адрес без отображаемого имени.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
