// Package order управляет жизненным циклом заказа: создание, нумерация, смена статусов
// и автоматическое завершение приготовления.
package order

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bakeryshop/internal/model"
	"github.com/mmeshcher/bakeryshop/internal/repository"
)

const (
	// NumberPrefix — префикс человекочитаемого номера заказа.
	NumberPrefix = "ORD-"
	// DefaultCompletionDelay — через сколько заказ в статусе preparing завершается автоматически.
	DefaultCompletionDelay = 5 * time.Minute
	// ListLimit ограничивает выдачу списка заказов.
	ListLimit = 100

	baseSequence     = 1000
	numberAttempts   = 3
	defaultOpTimeout = 10 * time.Second
)

var (
	// ErrNotFound возвращается, если заказ не найден.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidInput возвращается для некорректных данных заказа.
	ErrInvalidInput = errors.New("invalid order input")
)

// Store описывает хранилище заказов, используемое менеджером.
type Store interface {
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrders(ctx context.Context, status *model.OrderStatus, limit int) ([]model.Order, error)
	UpdateOrder(ctx context.Context, id string, patch model.OrderPatch, now time.Time) (*model.Order, model.OrderStatus, error)
	CompleteIfPreparing(ctx context.Context, id string, now time.Time) (*model.Order, bool, error)
	MaxOrderSequence(ctx context.Context) (int64, error)
	ClaimLoyaltyCredit(ctx context.Context, id string, now time.Time) (bool, error)
}

// Scheduler планирует отложенные задачи по ключу. Реализуется timers.Registry.
type Scheduler interface {
	Schedule(key string, d time.Duration, fn func()) bool
	Cancel(key string) bool
}

// CompletionHook вызывается один раз на заказ, при первом переходе в статус completed.
type CompletionHook func(ctx context.Context, o model.Order)

// Option настраивает Manager.
type Option func(*Manager)

// WithCompletionDelay задаёт задержку автоматического завершения.
func WithCompletionDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithCompletionHook задаёт обработчик завершения заказа.
func WithCompletionHook(h CompletionHook) Option {
	return func(m *Manager) {
		m.onComplete = h
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager владеет правом изменения заказов.
type Manager struct {
	store      Store
	timers     Scheduler
	logger     *zap.Logger
	delay      time.Duration
	opTimeout  time.Duration
	now        func() time.Time
	newID      func() string
	onComplete CompletionHook

	seqMu   sync.Mutex
	lastSeq int64
}

// NewManager создаёт менеджер заказов.
func NewManager(store Store, timers Scheduler, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		timers:    timers,
		logger:    logger,
		delay:     DefaultCompletionDelay,
		opTimeout: defaultOpTimeout,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateInput — данные оформленного заказа.
type CreateInput struct {
	UserID        *int64
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Notes         string
	Items         []model.OrderItem
	Tax           decimal.Decimal
	ShippingCost  decimal.Decimal
}

// Create создаёт заказ в статусе pending. Если хранилище недоступно, заказ всё равно
// возвращается вызывающему, а сбой пишется в журнал.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*model.Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrInvalidInput)
	}

	items := make([]model.OrderItem, 0, len(in.Items))
	total := decimal.Zero
	for _, it := range in.Items {
		if it.ProductID == 0 || it.Quantity < 1 {
			return nil, fmt.Errorf("%w: bad item for product %d", ErrInvalidInput, it.ProductID)
		}
		it.TotalPrice = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		it.Variant = slices.Clone(it.Variant)
		items = append(items, it)
		total = total.Add(it.TotalPrice)
	}

	now := m.now()
	o := &model.Order{
		ID:            m.newID(),
		UserID:        in.UserID,
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		CustomerEmail: in.CustomerEmail,
		Items:         items,
		TotalAmount:   total,
		Tax:           in.Tax,
		ShippingCost:  in.ShippingCost,
		Status:        model.OrderStatusPending,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		o.OrderNumber = m.nextNumber(ctx)
		err = m.store.CreateOrder(ctx, o)
		if !errors.Is(err, repository.ErrOrderNumberTaken) {
			break
		}
		m.logger.Warn("order number collision", zap.String("number", o.OrderNumber))
	}

	if err != nil {
		m.logger.Error("order accepted but not persisted",
			zap.Error(err),
			zap.String("orderID", o.ID),
			zap.String("number", o.OrderNumber),
		)
		return o, nil
	}

	m.logger.Info("order created", zap.String("orderID", o.ID), zap.String("number", o.OrderNumber))
	return o, nil
}

// nextNumber выдаёт следующий номер: максимум из хранилища и последнего выданного в процессе
// плюс один. Пустое хранилище даёт базовый номер, недоступное — номер из метки времени.
func (m *Manager) nextNumber(ctx context.Context) string {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()

	stored, err := m.store.MaxOrderSequence(ctx)
	if err != nil {
		m.logger.Warn("order sequence unavailable", zap.Error(err))
	}

	var seq int64
	switch {
	case err != nil && m.lastSeq == 0:
		seq = m.now().UnixMilli()
	case stored == 0 && m.lastSeq == 0:
		seq = baseSequence
	default:
		seq = max(stored, m.lastSeq) + 1
	}

	m.lastSeq = seq
	return NumberPrefix + strconv.FormatInt(seq, 10)
}

// List возвращает последние заказы, начиная с самых новых, с необязательным фильтром по статусу.
func (m *Manager) List(ctx context.Context, status *model.OrderStatus) ([]model.Order, error) {
	if status != nil {
		if _, err := model.ParseOrderStatus(string(*status)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return m.store.ListOrders(ctx, status, ListLimit)
}

// Get возвращает заказ по идентификатору.
func (m *Manager) Get(ctx context.Context, id string) (*model.Order, error) {
	o, err := m.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return o, nil
}

// Update применяет патч к заказу. Переход в preparing запускает таймер автозавершения,
// переход в cancelled или completed его отменяет.
func (m *Manager) Update(ctx context.Context, id string, patch model.OrderPatch) (*model.Order, error) {
	if patch.Status != nil {
		if _, err := model.ParseOrderStatus(string(*patch.Status)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	updated, previous, err := m.store.UpdateOrder(ctx, id, patch, m.now())
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	if patch.Status == nil {
		return updated, nil
	}

	switch {
	case updated.Status == model.OrderStatusPreparing:
		m.scheduleCompletion(updated.ID, m.delay)
	case updated.Status.IsTerminal():
		m.timers.Cancel(updated.ID)
	}

	if updated.Status == model.OrderStatusCompleted && previous != model.OrderStatusCompleted {
		m.completed(ctx, *updated)
	}

	m.logger.Info("order status changed",
		zap.String("orderID", updated.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(updated.Status)),
	)

	return updated, nil
}

// Resume восстанавливает таймеры для заказов, оставшихся в статусе preparing после перезапуска.
func (m *Manager) Resume(ctx context.Context) (int, error) {
	preparing := model.OrderStatusPreparing
	orders, err := m.store.ListOrders(ctx, &preparing, 0)
	if err != nil {
		return 0, fmt.Errorf("list preparing orders: %w", err)
	}

	now := m.now()
	for _, o := range orders {
		remaining := max(m.delay-now.Sub(o.UpdatedAt), 0)
		m.scheduleCompletion(o.ID, remaining)
	}

	return len(orders), nil
}

func (m *Manager) scheduleCompletion(id string, d time.Duration) {
	m.timers.Schedule(id, d, func() {
		m.autoComplete(id)
	})
}

func (m *Manager) autoComplete(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	o, ok, err := m.store.CompleteIfPreparing(ctx, id, m.now())
	if err != nil {
		m.logger.Error("auto-complete order error", zap.Error(err), zap.String("orderID", id))
		return
	}
	if !ok {
		m.logger.Debug("auto-complete skipped, order left preparing", zap.String("orderID", id))
		return
	}

	m.logger.Info("order auto-completed", zap.String("orderID", id))
	m.completed(ctx, *o)
}

// completed передаёт заказ обработчику завершения. Повторное завершение того же заказа
// (например, completed → pending → completed) обработчик не получает.
func (m *Manager) completed(ctx context.Context, o model.Order) {
	if m.onComplete == nil {
		return
	}

	claimed, err := m.store.ClaimLoyaltyCredit(ctx, o.ID, m.now())
	if err != nil {
		m.logger.Error("claim loyalty credit error", zap.Error(err), zap.String("orderID", o.ID))
		return
	}
	if !claimed {
		m.logger.Debug("order already credited", zap.String("orderID", o.ID))
		return
	}

	m.onComplete(ctx, o)
}
