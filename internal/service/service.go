// Package service реализует сценарии витрины пекарни поверх корзины, заказов и лояльности.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bakeryshop/internal/cart"
	"github.com/mmeshcher/bakeryshop/internal/loyalty"
	"github.com/mmeshcher/bakeryshop/internal/model"
	"github.com/mmeshcher/bakeryshop/internal/order"
	"github.com/mmeshcher/bakeryshop/internal/repository"
	"github.com/mmeshcher/bakeryshop/internal/validation"
)

const notificationsLimit = 50

var (
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownProduct возвращается, если товара нет в каталоге или он снят с продажи.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrInvalidContact возвращается для некорректных контактных данных покупателя.
	ErrInvalidContact = errors.New("invalid contact details")
)

// CartInvalidError возвращается оформлением заказа, если позиции превышают остатки.
type CartInvalidError struct {
	Result cart.ValidationResult
}

func (e *CartInvalidError) Error() string {
	return fmt.Sprintf("cart has %d lines over stock", len(e.Result.Problems))
}

// Is позволяет сравнивать ошибку с cart.ErrStockExceeded.
func (e *CartInvalidError) Is(target error) bool {
	return target == cart.ErrStockExceeded
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	CreateUser(ctx context.Context, login string, passwordHash []byte, isAdmin bool) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)
	ListNotifications(ctx context.Context, userID int64, limit int) ([]model.Notification, error)
}

// Orders — жизненный цикл заказов.
type Orders interface {
	Create(ctx context.Context, in order.CreateInput) (*model.Order, error)
	Get(ctx context.Context, id string) (*model.Order, error)
	List(ctx context.Context, status *model.OrderStatus) ([]model.Order, error)
	Update(ctx context.Context, id string, patch model.OrderPatch) (*model.Order, error)
}

// Loyalty — программы лояльности.
type Loyalty interface {
	RecordGoogleReview(ctx context.Context, userID int64, in loyalty.ReviewInput) (loyalty.ReviewResult, error)
	VerifyReview(ctx context.Context, reviewID int64) (loyalty.ReviewResult, error)
	UseReward(ctx context.Context, code string) (*model.LoyaltyReward, error)
	Overview(ctx context.Context, userID int64) (*loyalty.Overview, error)
}

// Service содержит бизнес-логику витрины.
type Service struct {
	repo        Repository
	orders      Orders
	loyalty     Loyalty
	logger      *zap.Logger
	adminLogins map[string]struct{}
}

// NewService создаёт сервис. Пользователи с логинами из adminLogins при регистрации получают права администратора.
func NewService(repo Repository, orders Orders, loyalty Loyalty, logger *zap.Logger, adminLogins []string) *Service {
	admins := make(map[string]struct{}, len(adminLogins))
	for _, l := range adminLogins {
		if l = strings.TrimSpace(l); l != "" {
			admins[l] = struct{}{}
		}
	}

	return &Service{
		repo:        repo,
		orders:      orders,
		loyalty:     loyalty,
		logger:      logger,
		adminLogins: admins,
	}
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	_, isAdmin := s.adminLogins[login]
	id, err := s.repo.CreateUser(ctx, login, hashed, isAdmin)
	if err != nil {
		return 0, err
	}

	if isAdmin {
		s.logger.Info("admin registered", zap.String("login", login), zap.Int64("userID", id))
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль и возвращает идентификатор пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	user, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return user.ID, nil
}

// IsAdmin сообщает, является ли пользователь администратором.
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.IsAdmin, nil
}

// VariantChoice — выбранная покупателем опция варианта по именам.
type VariantChoice struct {
	Variant string
	Option  string
}

// CartLine — позиция, присланная клиентом.
type CartLine struct {
	ProductID int64
	Quantity  float64
	Notes     string
	Variant   []VariantChoice
}

// Quote — расчёт корзины по актуальному каталогу.
type Quote struct {
	Items      []cart.LineItem       `json:"items"`
	Summary    cart.Summary          `json:"summary"`
	Validation cart.ValidationResult `json:"validation"`
	// Capped — позиции, количество которых было урезано до остатка при объединении.
	Capped []cart.LineProblem `json:"capped,omitempty"`
}

// QuoteCart собирает корзину из присланных позиций и возвращает её итоги.
func (s *Service) QuoteCart(ctx context.Context, lines []CartLine) (*Quote, error) {
	c, stock, capped, err := s.buildCart(ctx, lines)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Items:      c.Items(),
		Summary:    c.Summary(),
		Validation: c.Validate(stock),
		Capped:     capped,
	}, nil
}

// CheckoutInput — данные оформления заказа.
type CheckoutInput struct {
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Notes         string
	Lines         []CartLine
}

// Checkout проверяет корзину по остаткам и создаёт заказ со снимком позиций.
func (s *Service) Checkout(ctx context.Context, userID *int64, in CheckoutInput) (*model.Order, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)

	if in.CustomerName == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidContact)
	}
	if !validation.IsValidPhone(in.CustomerPhone) {
		return nil, fmt.Errorf("%w: phone %q", ErrInvalidContact, in.CustomerPhone)
	}
	if in.CustomerEmail != "" && !validation.IsValidEmail(in.CustomerEmail) {
		return nil, fmt.Errorf("%w: email %q", ErrInvalidContact, in.CustomerEmail)
	}

	c, stock, capped, err := s.buildCart(ctx, in.Lines)
	if err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return nil, fmt.Errorf("%w: cart is empty", cart.ErrValidation)
	}
	// урезанное при объединении количество не оформляется молча
	if len(capped) > 0 {
		return nil, &CartInvalidError{Result: cart.ValidationResult{Problems: capped}}
	}

	if res := c.Validate(stock); !res.Valid {
		return nil, &CartInvalidError{Result: res}
	}

	summary := c.Summary()
	items := make([]model.OrderItem, 0, c.Len())
	for _, l := range c.Items() {
		items = append(items, model.OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Notes:     l.Notes,
			Variant:   l.Variant,
		})
	}

	return s.orders.Create(ctx, order.CreateInput{
		UserID:        userID,
		CustomerName:  in.CustomerName,
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		CustomerEmail: in.CustomerEmail,
		Notes:         in.Notes,
		Items:         items,
		Tax:           summary.Tax,
		ShippingCost:  summary.ShippingCost,
	})
}

// buildCart собирает корзину по каталогу. Позиции, урезанные до остатка при объединении,
// возвращаются с суммарным запрошенным количеством.
func (s *Service) buildCart(ctx context.Context, lines []CartLine) (*cart.Cart, cart.StockLevels, []cart.LineProblem, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; !ok {
			seen[l.ProductID] = struct{}{}
			ids = append(ids, l.ProductID)
		}
	}

	products := map[int64]model.Product{}
	if len(ids) > 0 {
		var err error
		products, err = s.repo.GetProductsByIDs(ctx, ids)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load products: %w", err)
		}
	}

	c := cart.New()
	stock := make(cart.StockLevels, len(products))

	var (
		quantity  = make(map[string]int)
		requested = make(map[string]int)
		notes     = make(map[string]string)
		capped    []cart.LineProblem
	)

	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: %d", ErrUnknownProduct, l.ProductID)
		}
		stock[p.ID] = p.Stock

		variant := make([]model.VariantSelection, 0, len(l.Variant))
		for _, ch := range l.Variant {
			sel, ok := p.ResolveSelection(ch.Variant, ch.Option)
			if !ok {
				return nil, nil, nil, fmt.Errorf("%w: product %d has no option %s/%s", cart.ErrValidation, p.ID, ch.Variant, ch.Option)
			}
			variant = append(variant, sel)
		}

		res, err := c.Add(p, l.Quantity, variant)
		if err != nil {
			return nil, nil, nil, err
		}
		requested[res.LineID] += res.Quantity + res.Rejected - quantity[res.LineID]
		quantity[res.LineID] = res.Quantity

		if res.Capped {
			i := slices.IndexFunc(capped, func(lp cart.LineProblem) bool { return lp.LineID == res.LineID })
			if i < 0 {
				capped = append(capped, cart.LineProblem{LineID: res.LineID, ProductID: p.ID, Available: res.Quantity})
				i = len(capped) - 1
			}
			capped[i].Requested = requested[res.LineID]
		}

		if text := mergeNotes(notes[res.LineID], l.Notes); text != notes[res.LineID] {
			notes[res.LineID] = text
			if err := c.UpdateNotes(res.LineID, text); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	return c, stock, capped, nil
}

// mergeNotes дописывает комментарий объединённой позиции, не теряя предыдущий.
func mergeNotes(current, added string) string {
	added = strings.TrimSpace(added)
	switch {
	case added == "":
		return current
	case current == "":
		return added
	case slices.Contains(strings.Split(current, "; "), added):
		return current
	default:
		return current + "; " + added
	}
}

// GetOrder возвращает заказ для отслеживания.
func (s *Service) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.orders.Get(ctx, id)
}

// ListOrders возвращает последние заказы с необязательным фильтром по статусу.
func (s *Service) ListOrders(ctx context.Context, status *model.OrderStatus) ([]model.Order, error) {
	return s.orders.List(ctx, status)
}

// UpdateOrder применяет патч администратора к заказу.
func (s *Service) UpdateOrder(ctx context.Context, id string, patch model.OrderPatch) (*model.Order, error) {
	if patch.CustomerPhone != nil && !validation.IsValidPhone(*patch.CustomerPhone) {
		return nil, fmt.Errorf("%w: phone %q", ErrInvalidContact, *patch.CustomerPhone)
	}
	if patch.CustomerEmail != nil && *patch.CustomerEmail != "" && !validation.IsValidEmail(*patch.CustomerEmail) {
		return nil, fmt.Errorf("%w: email %q", ErrInvalidContact, *patch.CustomerEmail)
	}
	return s.orders.Update(ctx, id, patch)
}

// LoyaltyOverview возвращает прогресс и награды пользователя.
func (s *Service) LoyaltyOverview(ctx context.Context, userID int64) (*loyalty.Overview, error) {
	return s.loyalty.Overview(ctx, userID)
}

// SubmitReview сохраняет отзыв пользователя.
func (s *Service) SubmitReview(ctx context.Context, userID int64, in loyalty.ReviewInput) (loyalty.ReviewResult, error) {
	return s.loyalty.RecordGoogleReview(ctx, userID, in)
}

// VerifyReview подтверждает отзыв.
func (s *Service) VerifyReview(ctx context.Context, reviewID int64) (loyalty.ReviewResult, error) {
	return s.loyalty.VerifyReview(ctx, reviewID)
}

// RedeemReward гасит награду по коду.
func (s *Service) RedeemReward(ctx context.Context, code string) (*model.LoyaltyReward, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !validation.IsValidRewardCode(code) {
		return nil, fmt.Errorf("%w: malformed code", loyalty.ErrRewardNotRedeemable)
	}
	return s.loyalty.UseReward(ctx, code)
}

// Notifications возвращает последние уведомления пользователя.
func (s *Service) Notifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	return s.repo.ListNotifications(ctx, userID, notificationsLimit)
}
