package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ErrUnknownOrderStatus возвращается для строки, не входящей в перечисление статусов.
var ErrUnknownOrderStatus = errors.New("unknown order status")

// ParseOrderStatus преобразует строку в статус заказа.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOrderStatus, s)
}

// IsTerminal сообщает, является ли статус конечным.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderItem — неизменяемый снимок купленной позиции.
type OrderItem struct {
	ProductID  int64              `json:"product_id"`
	Name       string             `json:"name"`
	Quantity   int                `json:"quantity"`
	UnitPrice  decimal.Decimal    `json:"unit_price"`
	TotalPrice decimal.Decimal    `json:"total_price"`
	Notes      string             `json:"notes,omitempty"`
	Variant    []VariantSelection `json:"variant,omitempty"`
}

// Order описывает заказ покупателя.
type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	UserID        *int64          `json:"user_id,omitempty"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Tax           decimal.Decimal `json:"tax"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	Status        OrderStatus     `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// FinalAmount возвращает итог к оплате: сумма позиций, налог и доставка.
func (o Order) FinalAmount() decimal.Decimal {
	return o.TotalAmount.Add(o.Tax).Add(o.ShippingCost)
}

// OrderPatch — частичное обновление заказа. Nil-поля не меняются.
type OrderPatch struct {
	Status        *OrderStatus
	Notes         *string
	CustomerName  *string
	CustomerPhone *string
	CustomerEmail *string
}

// IsEmpty сообщает, что патч не содержит ни одного поля.
func (p OrderPatch) IsEmpty() bool {
	return p.Status == nil && p.Notes == nil && p.CustomerName == nil &&
		p.CustomerPhone == nil && p.CustomerEmail == nil
}

// Apply применяет патч к заказу и обновляет UpdatedAt.
func (p OrderPatch) Apply(o *Order, now time.Time) {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	if p.CustomerName != nil {
		o.CustomerName = *p.CustomerName
	}
	if p.CustomerPhone != nil {
		o.CustomerPhone = *p.CustomerPhone
	}
	if p.CustomerEmail != nil {
		o.CustomerEmail = *p.CustomerEmail
	}
	o.UpdatedAt = now
}
