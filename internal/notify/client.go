// Package notify доставляет сохранённые уведомления во внешний веб-хук.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/bakeryshop/internal/model"
)

// ErrNotConfigured возвращается клиентом без адреса веб-хука.
var ErrNotConfigured = errors.New("notification webhook not configured")

// Client инкапсулирует HTTP-взаимодействие с получателем уведомлений.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Event — тело запроса к веб-хуку.
type Event struct {
	ID         int64                  `json:"id"`
	UserID     int64                  `json:"user_id"`
	Type       model.NotificationType `json:"type"`
	ProgramID  int64                  `json:"program_id,omitempty"`
	RewardCode string                 `json:"reward_code,omitempty"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewClient создаёт HTTP-клиент для веб-хука по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Send отправляет уведомление. При ответе 429 возвращает код и паузу из Retry-After без ошибки.
func (c *Client) Send(ctx context.Context, n model.Notification) (int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return 0, 0, ErrNotConfigured
	}

	body, err := json.Marshal(Event{
		ID:         n.ID,
		UserID:     n.UserID,
		Type:       n.Type,
		ProgramID:  n.ProgramID,
		RewardCode: n.RewardCode,
		Title:      n.Title,
		Message:    n.Message,
		CreatedAt:  n.CreatedAt,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/notifications", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return resp.StatusCode, 0, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}
