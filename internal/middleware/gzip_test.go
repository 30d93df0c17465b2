package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type testCartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type testOrder struct {
	OrderNumber string         `json:"order_number"`
	Items       []testCartLine `json:"items"`
}

// orderEchoHandler разбирает позиции из тела и отвечает заказом с ними.
func orderEchoHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []testCartLine `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(testOrder{OrderNumber: "ORD-1000", Items: req.Items})
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestGzipMiddleware_Checkout(t *testing.T) {
	const checkout = `{"items":[{"product_id":7,"quantity":2},{"product_id":9,"quantity":1}]}`

	tests := []struct {
		name           string
		compressBody   bool
		acceptEncoding string
		wantEncoding   string
	}{
		{name: "plain body, gzip response", acceptEncoding: "gzip, deflate", wantEncoding: "gzip"},
		{name: "gzip body, gzip response", compressBody: true, acceptEncoding: "gzip", wantEncoding: "gzip"},
		{name: "gzip body, plain response", compressBody: true},
		{name: "plain body, plain response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(checkout)
			if tt.compressBody {
				body = gzipBytes(t, checkout)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(orderEchoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != http.StatusCreated {
				t.Fatalf("status: got %d want %d", res.StatusCode, http.StatusCreated)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.wantEncoding)
			}

			var reader io.Reader = res.Body
			if tt.wantEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer gr.Close()
				reader = gr
			}

			var got testOrder
			if err := json.NewDecoder(reader).Decode(&got); err != nil {
				t.Fatalf("decode order: %v", err)
			}
			if got.OrderNumber != "ORD-1000" || len(got.Items) != 2 || got.Items[0].Quantity != 2 {
				t.Fatalf("order = %+v", got)
			}
		})
	}
}

func TestGzipMiddleware_TrackingPageHTML(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders/ORD-1000", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>ORD-1000 preparing</body></html>"))
	})).ServeHTTP(w, req)

	if ce := w.Header().Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("content-encoding: got %q want gzip", ce)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content-type: got %q want detected text/html", ct)
	}

	gr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	page, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(page), "ORD-1000 preparing") {
		t.Fatalf("page = %q", page)
	}
}

func TestGzipMiddleware_SkipsEmptyAndBinaryResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "no notifications",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNoContent)
			},
		},
		{
			name: "product image",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/notifications", nil)
			req.Header.Set("Accept-Encoding", "gzip")
			w := httptest.NewRecorder()

			GzipMiddleware(tt.handler).ServeHTTP(w, req)

			if ce := w.Header().Get("Content-Encoding"); ce != "" {
				t.Fatalf("content-encoding: got %q want empty", ce)
			}
		})
	}
}

func TestGzipMiddleware_BrokenRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()

	GzipMiddleware(http.HandlerFunc(orderEchoHandler)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", w.Code, http.StatusBadRequest)
	}
}
