package notify

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bakeryshop/internal/model"
)

const (
	defaultInterval  = 1 * time.Second
	defaultBatchSize = 100
)

// Outbox — хранилище недоставленных уведомлений.
type Outbox interface {
	UndeliveredNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
}

// Sender отправляет одно уведомление получателю.
type Sender interface {
	Send(ctx context.Context, n model.Notification) (int, time.Duration, error)
}

// Dispatcher периодически выбирает недоставленные уведомления и отправляет их.
type Dispatcher struct {
	outbox   Outbox
	sender   Sender
	logger   *zap.Logger
	interval time.Duration
	batch    int
}

// NewDispatcher создаёт диспетчер с опросом раз в секунду пачками по 100.
func NewDispatcher(outbox Outbox, sender Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		outbox:   outbox,
		sender:   sender,
		logger:   logger,
		interval: defaultInterval,
		batch:    defaultBatchSize,
	}
}

// Run опрашивает очередь до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.processBatch(ctx)
		}
	}
}

// processBatch возвращает число доставленных уведомлений.
func (d *Dispatcher) processBatch(ctx context.Context) int {
	pending, err := d.outbox.UndeliveredNotifications(ctx, d.batch)
	if err != nil {
		d.logger.Warn("load undelivered notifications error", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, n := range pending {
		status, retryAfter, err := d.sender.Send(ctx, n)
		if err != nil {
			d.logger.Warn("notification delivery error", zap.Error(err), zap.Int64("notificationID", n.ID))
			continue
		}

		if status == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return delivered
				case <-timer.C:
				}
			}
			// остаток пачки уйдёт на следующем тике
			return delivered
		}

		if err := d.outbox.MarkDelivered(ctx, n.ID, time.Now()); err != nil {
			d.logger.Error("mark notification delivered error", zap.Error(err), zap.Int64("notificationID", n.ID))
			continue
		}
		delivered++
	}

	return delivered
}
