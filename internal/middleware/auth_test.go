package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id not in context")
		}
		if id != 42 {
			t.Fatalf("user id from context = %d, want 42", id)
		}
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	m.SetAuthCookie(w, 42)
	res := w.Result()
	resCookies := res.Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}

	r.AddCookie(resCookies[0])

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}


func TestAuthMiddleware_TamperedCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, 42)
	cookie := w.Result().Cookies()[0]
	cookie.Value = "43" + cookie.Value[2:]

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(cookie)
	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_CookieFromOtherSecret(t *testing.T) {
	issuer := NewAuthMiddleware("one")
	verifier := NewAuthMiddleware("two")

	w := httptest.NewRecorder()
	issuer.SetAuthCookie(w, 42)

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(w.Result().Cookies()[0])

	if _, ok := verifier.userFromRequest(r); ok {
		t.Fatalf("cookie signed with another secret accepted")
	}
}

func TestAuthMiddleware_Optional(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	var (
		gotID int64
		gotOK bool
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = GetUserIDFromContext(r.Context())
	})

	anon := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	m.Optional(next).ServeHTTP(httptest.NewRecorder(), anon)
	if gotOK {
		t.Fatalf("anonymous request got user %d", gotID)
	}

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, 7)
	signed := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	signed.AddCookie(w.Result().Cookies()[0])
	m.Optional(next).ServeHTTP(httptest.NewRecorder(), signed)
	if !gotOK || gotID != 7 {
		t.Fatalf("user = %d, %v; want 7, true", gotID, gotOK)
	}
}

type stubAdmins map[int64]bool

func (s stubAdmins) IsAdmin(_ context.Context, userID int64) (bool, error) {
	return s[userID], nil
}

func TestRequireAdmin(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	h := m.Middleware(RequireAdmin(stubAdmins{1: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		userID int64
		want   int
	}{
		{name: "admin", userID: 1, want: http.StatusNoContent},
		{name: "customer", userID: 2, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			m.SetAuthCookie(w, tt.userID)

			r := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
			r.AddCookie(w.Result().Cookies()[0])

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
