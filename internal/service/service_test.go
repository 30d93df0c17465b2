package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/mmeshcher/bakeryshop/internal/cart"
	"github.com/mmeshcher/bakeryshop/internal/loyalty"
	"github.com/mmeshcher/bakeryshop/internal/model"
	"github.com/mmeshcher/bakeryshop/internal/order"
	"github.com/mmeshcher/bakeryshop/internal/repository"
)

type stubRepo struct {
	users    map[string]*model.User
	products map[int64]model.Product
	nextID   int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users: make(map[string]*model.User),
		products: map[int64]model.Product{
			1: {ID: 1, Name: "Croissant", Price: decimal.NewFromInt(10), Stock: 4},
			2: {
				ID: 2, Name: "Birthday cake", Price: decimal.NewFromInt(60), Stock: 2,
				Variants: []model.ProductVariant{{
					Name: "Size",
					Options: []model.VariantOption{
						{Name: "Small", PriceModifier: decimal.Zero},
						{Name: "Large", PriceModifier: decimal.NewFromInt(25)},
					},
				}},
			},
		},
	}
}

func (s *stubRepo) CreateUser(_ context.Context, login string, passwordHash []byte, isAdmin bool) (int64, error) {
	if _, ok := s.users[login]; ok {
		return 0, repository.ErrUserExists
	}
	s.nextID++
	s.users[login] = &model.User{ID: s.nextID, Login: login, PasswordHash: passwordHash, IsAdmin: isAdmin}
	return s.nextID, nil
}

func (s *stubRepo) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	u, ok := s.users[login]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *stubRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]model.Product, error) {
	res := make(map[int64]model.Product)
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			res[id] = p
		}
	}
	return res, nil
}

func (s *stubRepo) ListNotifications(_ context.Context, _ int64, _ int) ([]model.Notification, error) {
	return nil, nil
}

type stubOrders struct {
	created *order.CreateInput
}

func (s *stubOrders) Create(_ context.Context, in order.CreateInput) (*model.Order, error) {
	s.created = &in
	return &model.Order{ID: "o-1", OrderNumber: "ORD-1000", UserID: in.UserID, Items: in.Items, Status: model.OrderStatusPending}, nil
}

func (s *stubOrders) Get(context.Context, string) (*model.Order, error) { return nil, order.ErrNotFound }

func (s *stubOrders) List(context.Context, *model.OrderStatus) ([]model.Order, error) { return nil, nil }

func (s *stubOrders) Update(context.Context, string, model.OrderPatch) (*model.Order, error) {
	return &model.Order{}, nil
}

type stubLoyalty struct {
	usedCode string
}

func (s *stubLoyalty) RecordGoogleReview(context.Context, int64, loyalty.ReviewInput) (loyalty.ReviewResult, error) {
	return loyalty.ReviewResult{}, nil
}

func (s *stubLoyalty) VerifyReview(context.Context, int64) (loyalty.ReviewResult, error) {
	return loyalty.ReviewResult{}, nil
}

func (s *stubLoyalty) UseReward(_ context.Context, code string) (*model.LoyaltyReward, error) {
	s.usedCode = code
	return &model.LoyaltyReward{RewardCode: code, IsUsed: true}, nil
}

func (s *stubLoyalty) Overview(context.Context, int64) (*loyalty.Overview, error) {
	return &loyalty.Overview{}, nil
}

func newTestService(t *testing.T) (*Service, *stubRepo, *stubOrders, *stubLoyalty) {
	t.Helper()
	repo := newStubRepo()
	orders := &stubOrders{}
	loy := &stubLoyalty{}
	return NewService(repo, orders, loy, zaptest.NewLogger(t), []string{"owner"}), repo, orders, loy
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.RegisterUser(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	if string(repo.users["alice"].PasswordHash) == "s3cret" {
		t.Fatalf("password stored in plain text")
	}

	got, err := svc.AuthenticateUser(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}
	if got != id {
		t.Fatalf("user id = %d, want %d", got, id)
	}

	if _, err := svc.AuthenticateUser(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.AuthenticateUser(ctx, "bob", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.RegisterUser(ctx, "alice", "again"); !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("duplicate login: err = %v, want ErrUserExists", err)
	}
}

func TestIsAdmin(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	ownerID, _ := svc.RegisterUser(ctx, "owner", "pw")
	customerID, _ := svc.RegisterUser(ctx, "customer", "pw")

	if ok, err := svc.IsAdmin(ctx, ownerID); err != nil || !ok {
		t.Fatalf("owner: IsAdmin = %v, %v; want true", ok, err)
	}
	if ok, err := svc.IsAdmin(ctx, customerID); err != nil || ok {
		t.Fatalf("customer: IsAdmin = %v, %v; want false", ok, err)
	}
	if ok, err := svc.IsAdmin(ctx, 999); err != nil || ok {
		t.Fatalf("unknown: IsAdmin = %v, %v; want false", ok, err)
	}
}

func TestQuoteCart_MergesAndPrices(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	q, err := svc.QuoteCart(context.Background(), []CartLine{
		{ProductID: 1, Quantity: 2},
		{ProductID: 1, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("QuoteCart error: %v", err)
	}

	if len(q.Items) != 1 || q.Items[0].Quantity != 3 {
		t.Fatalf("items = %+v, want one line with quantity 3", q.Items)
	}
	if !q.Summary.Subtotal.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("subtotal = %s, want 30", q.Summary.Subtotal)
	}
	if !q.Summary.Tax.Equal(decimal.RequireFromString("5.4")) {
		t.Fatalf("tax = %s, want 5.4", q.Summary.Tax)
	}
	if !q.Summary.ShippingCost.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("shipping = %s, want 20", q.Summary.ShippingCost)
	}
	if !q.Validation.Valid {
		t.Fatalf("cart within stock reported invalid: %+v", q.Validation)
	}
}

func TestQuoteCart_CapsAtStock(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	q, err := svc.QuoteCart(context.Background(), []CartLine{
		{ProductID: 1, Quantity: 3},
		{ProductID: 1, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("QuoteCart error: %v", err)
	}
	if q.Items[0].Quantity != 4 {
		t.Fatalf("quantity = %d, want 4", q.Items[0].Quantity)
	}
	if len(q.Capped) != 1 || q.Capped[0].LineID != q.Items[0].ID {
		t.Fatalf("capped = %+v, want line %s", q.Capped, q.Items[0].ID)
	}
	if q.Capped[0].Requested != 6 || q.Capped[0].Available != 4 {
		t.Fatalf("capped = %+v, want requested 6 available 4", q.Capped[0])
	}
}

func TestCheckout_RejectsLinesMergedOverStock(t *testing.T) {
	svc, _, orders, _ := newTestService(t)

	_, err := svc.Checkout(context.Background(), nil, CheckoutInput{
		CustomerName:  "Ayşe",
		CustomerPhone: "5321234567",
		Lines: []CartLine{
			{ProductID: 1, Quantity: 3},
			{ProductID: 1, Quantity: 3},
			{ProductID: 1, Quantity: 1},
		},
	})

	var invalid *CartInvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want CartInvalidError", err)
	}
	if !errors.Is(err, cart.ErrStockExceeded) {
		t.Fatalf("err does not match ErrStockExceeded")
	}
	problems := invalid.Result.Problems
	if len(problems) != 1 || problems[0].ProductID != 1 || problems[0].Requested != 7 || problems[0].Available != 4 {
		t.Fatalf("problems = %+v, want product 1 requested 7 available 4", problems)
	}
	if orders.created != nil {
		t.Fatalf("order created with %d units", orders.created.Items[0].Quantity)
	}
}

func TestQuoteCart_MergedLinesKeepNotes(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	q, err := svc.QuoteCart(context.Background(), []CartLine{
		{ProductID: 1, Quantity: 1, Notes: "warm please"},
		{ProductID: 1, Quantity: 1},
		{ProductID: 1, Quantity: 1, Notes: "no sugar"},
		{ProductID: 1, Quantity: 1, Notes: "warm please"},
	})
	if err != nil {
		t.Fatalf("QuoteCart error: %v", err)
	}
	if len(q.Items) != 1 {
		t.Fatalf("lines = %d, want 1", len(q.Items))
	}
	if q.Items[0].Notes != "warm please; no sugar" {
		t.Fatalf("notes = %q", q.Items[0].Notes)
	}
}

func TestQuoteCart_VariantsAndOversize(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	q, err := svc.QuoteCart(context.Background(), []CartLine{
		{ProductID: 2, Quantity: 1, Variant: []VariantChoice{{Variant: "size", Option: "large"}}},
	})
	if err != nil {
		t.Fatalf("QuoteCart error: %v", err)
	}
	if !q.Items[0].UnitPrice.Equal(decimal.NewFromInt(85)) {
		t.Fatalf("unit price = %s, want 85", q.Items[0].UnitPrice)
	}
	if !q.Summary.ShippingCost.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("shipping = %s, want 35 for a cake", q.Summary.ShippingCost)
	}
}

func TestQuoteCart_Errors(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.QuoteCart(ctx, []CartLine{{ProductID: 42, Quantity: 1}}); !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("unknown product: err = %v", err)
	}

	_, err := svc.QuoteCart(ctx, []CartLine{{ProductID: 2, Quantity: 1, Variant: []VariantChoice{{Variant: "Size", Option: "Huge"}}}})
	if !errors.Is(err, cart.ErrValidation) {
		t.Fatalf("unknown option: err = %v", err)
	}

	_, err = svc.QuoteCart(ctx, []CartLine{{ProductID: 1, Quantity: 9}})
	var stockErr *cart.StockExceededError
	if !errors.As(err, &stockErr) || stockErr.Available != 4 {
		t.Fatalf("over stock: err = %v", err)
	}
}

func TestCheckout(t *testing.T) {
	svc, _, orders, _ := newTestService(t)
	userID := int64(7)

	o, err := svc.Checkout(context.Background(), &userID, CheckoutInput{
		CustomerName:  "  Ayşe ",
		CustomerPhone: "+90 532 123 45 67",
		Lines: []CartLine{
			{ProductID: 1, Quantity: 2, Notes: "warm please"},
			{ProductID: 2, Quantity: 1, Variant: []VariantChoice{{Variant: "Size", Option: "Small"}}},
		},
	})
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	if o.OrderNumber != "ORD-1000" {
		t.Fatalf("order number = %s", o.OrderNumber)
	}

	in := orders.created
	if in == nil {
		t.Fatalf("order manager was not called")
	}
	if in.UserID == nil || *in.UserID != 7 {
		t.Fatalf("user id not passed to order")
	}
	if in.CustomerName != "Ayşe" {
		t.Fatalf("customer name = %q", in.CustomerName)
	}
	if len(in.Items) != 2 || in.Items[0].Notes != "warm please" {
		t.Fatalf("items = %+v", in.Items)
	}
	// 20 + 60 = 80 < 100: налог 14.4, торт даёт доставку 35
	if !in.Tax.Equal(decimal.RequireFromString("14.4")) || !in.ShippingCost.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("tax = %s, shipping = %s", in.Tax, in.ShippingCost)
	}
}

func TestCheckout_Validation(t *testing.T) {
	svc, _, orders, _ := newTestService(t)
	ctx := context.Background()
	line := []CartLine{{ProductID: 1, Quantity: 1}}

	if _, err := svc.Checkout(ctx, nil, CheckoutInput{CustomerPhone: "5321234567", Lines: line}); !errors.Is(err, ErrInvalidContact) {
		t.Fatalf("missing name: err = %v", err)
	}
	if _, err := svc.Checkout(ctx, nil, CheckoutInput{CustomerName: "A", CustomerPhone: "call me", Lines: line}); !errors.Is(err, ErrInvalidContact) {
		t.Fatalf("bad phone: err = %v", err)
	}
	if _, err := svc.Checkout(ctx, nil, CheckoutInput{CustomerName: "A", CustomerPhone: "5321234567"}); !errors.Is(err, cart.ErrValidation) {
		t.Fatalf("empty cart: err = %v", err)
	}
	if orders.created != nil {
		t.Fatalf("order created despite invalid input")
	}
}

func TestRedeemReward(t *testing.T) {
	svc, _, _, loy := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RedeemReward(ctx, "free-cake"); !errors.Is(err, loyalty.ErrRewardNotRedeemable) {
		t.Fatalf("malformed code: err = %v", err)
	}
	if loy.usedCode != "" {
		t.Fatalf("malformed code reached loyalty engine")
	}

	if _, err := svc.RedeemReward(ctx, " rwd-ab12cd34 "); err != nil {
		t.Fatalf("RedeemReward error: %v", err)
	}
	if loy.usedCode != "RWD-AB12CD34" {
		t.Fatalf("used code = %q", loy.usedCode)
	}
}
