// Package gemini は Gemini generateContent REST API の薄いクライアントです。
// リトライもキャッシュも行わない、1呼び出し1リクエストのベストエフォートなのだ。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL は Gemini API のエンドポイントです。
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultTimeout は上流呼び出しの固定タイムアウトです。
	DefaultTimeout = 60 * time.Second
)

// UpstreamError は上流APIからの非成功応答です。
// ステータスコードと、応答ボディから抽出したメッセージを保持します。
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("generation API error (status %d): %s", e.StatusCode, e.Message)
}

// Client は generateContent を呼び出す共有クライアントです。
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// Option は Client の挙動を調整します。
type Option func(*Client)

// WithBaseURL はエンドポイントを差し替えます（テスト用途）。
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithTimeout はHTTPタイムアウトを変更します。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

// WithRateInterval は上流呼び出しの最小間隔を設定します。
// ゼロ以下なら制限なしのままです。
func WithRateInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// New は Client を生成します。
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateContent はリクエストを指定モデルのエンドポイントに送り、
// 解析済みの応答をそのまま返します。実際の生成物の取り出しは
// Response の抽出メソッドで呼び出し元が行います。
func (c *Client) GenerateContent(ctx context.Context, model string, req *Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, model, url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエストの構築に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation API への接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("応答ボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(raw),
		}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &out, nil
}

// extractErrorMessage はエラーボディから {error: {message}} を取り出します。
// JSONでない、またはフィールドが無い場合は生のボディにフォールバックします。
func extractErrorMessage(raw []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return string(raw)
}
