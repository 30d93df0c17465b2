// Package model содержит доменные сущности витрины пекарни.
package model

import "time"

// User представляет зарегистрированного покупателя или администратора.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	IsAdmin      bool
	CreatedAt    time.Time
}
