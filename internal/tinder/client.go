// Package tinder はマッチングサービスのHTTP APIクライアントを提供する。
// 認証、自分のプロフィール、おすすめ、アップデート、ライクの各エンドポイントを扱う。
package tinder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/matchkeeper/internal/model"
)

const (
	// DefaultBaseURL はAPIのデフォルトのベースURL。
	DefaultBaseURL = "https://api.gotinder.com"

	appVersion = "4"
	platform   = "android"
	userAgent  = "Tinder/4.0.9 (iPhone; iOS 8.1.1; Scale/2.00)"
)

// APIRecorder はAPI呼び出しのメトリクスを記録するインターフェース。
type APIRecorder interface {
	RecordAPIStatus(endpoint string, statusCode int)
	RecordAPILatency(duration time.Duration)
}

// Client はAPIクライアント。
// 認証トークンとヘッダーはインスタンスごとに保持し、グローバル状態は持たない。
// リトライは行わず、200以外のステータスはTransportErrorとして返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にベースURLを差し替え可能
	limiter    *rate.Limiter
	metrics    APIRecorder
	token      string
	userID     string
}

// NewClient はClientの新しいインスタンスを生成する。
// ratePerMinute が0以下の場合はリクエスト間隔を制限しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, ratePerMinute int, metrics APIRecorder) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), 1)
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   baseURL,
		limiter:    limiter,
		metrics:    metrics,
	}
}

// SetToken は取得済みの認証トークンを設定する。
func (c *Client) SetToken(token string) {
	c.token = token
}

// UserID は認証で得られたユーザーIDを返す。
func (c *Client) UserID() string {
	return c.userID
}

// Authenticate はFacebookのアクセストークンでログインし、認証トークンを保持する。
// 500が返る場合はFacebookトークンの期限切れであることが多い。
func (c *Client) Authenticate(ctx context.Context, facebookToken, facebookID string) (*model.AuthResult, error) {
	c.logger.Info("認証しています")

	body := map[string]string{
		"facebook_token": facebookToken,
		"facebook_id":    facebookID,
	}
	var result model.AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth", body, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, model.WrapTransportError("/auth", fmt.Errorf("レスポンスにトークンが含まれていません"))
	}

	c.token = result.Token
	c.userID = result.User.ID
	c.logger.Info("認証に成功しました", slog.String("user_id", c.userID))
	return &result, nil
}

// FetchOwnProfile は自分のプロフィールを取得する。
func (c *Client) FetchOwnProfile(ctx context.Context) (*model.Profile, error) {
	c.logger.Info("自分のプロフィールを取得しています")

	var profile model.Profile
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &profile); err != nil {
		return nil, err
	}
	if profile.ID == "" {
		return nil, model.NewInvalidRecordError("プロフィールに _id がありません")
	}
	return &profile, nil
}

// FetchRecommendations はおすすめの人物一覧を取得する。
// results がない場合は空として扱う。
func (c *Client) FetchRecommendations(ctx context.Context) ([]*model.Person, error) {
	c.logger.Info("おすすめを取得しています")

	var resp struct {
		Results []*model.Person `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/user/recs", nil, &resp); err != nil {
		return nil, err
	}
	c.logger.Info("おすすめを取得しました", slog.Int("count", len(resp.Results)))
	return resp.Results, nil
}

// FetchUpdates は現在のマッチとブロックの一覧を取得する。
func (c *Client) FetchUpdates(ctx context.Context) (*model.Updates, error) {
	c.logger.Info("アップデートを取得しています")

	body := map[string]string{"last_activity_date": ""}
	var updates model.Updates
	if err := c.do(ctx, http.MethodPost, "/updates", body, &updates); err != nil {
		return nil, err
	}
	return &updates, nil
}

// Like は指定した人物にライクを送る。
func (c *Client) Like(ctx context.Context, id string) (*model.LikeResult, error) {
	var result model.LikeResult
	if err := c.do(ctx, http.MethodGet, "/like/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do はリクエストを組み立てて送信し、200の場合のみレスポンスをoutにデコードする。
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.WrapTransportError(path, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗しました: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("app_version", appVersion)
	req.Header.Set("platform", platform)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordAPILatency(time.Since(start))
	}
	if err != nil {
		c.logger.Error("APIの呼び出しに失敗しました",
			slog.String("endpoint", path),
			slog.String("error", err.Error()),
		)
		return model.WrapTransportError(path, err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordAPIStatus(metricsEndpoint(path), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("APIがエラーステータスを返しました",
			slog.String("endpoint", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return model.NewTransportError(path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.WrapTransportError(path, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err))
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("APIレスポンスのパースに失敗しました",
			slog.String("endpoint", path),
			slog.String("error", err.Error()),
		)
		return model.WrapTransportError(path, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
	}
	return nil
}

// metricsEndpoint は人物IDを含むパスをラベル用にまとめる。
func metricsEndpoint(path string) string {
	if strings.HasPrefix(path, "/like/") {
		return "/like"
	}
	return path
}
