package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/matchkeeper/internal/config"
	"github.com/hitoshi/matchkeeper/internal/handler"
	"github.com/hitoshi/matchkeeper/internal/logger"
	"github.com/hitoshi/matchkeeper/internal/metrics"
	"github.com/hitoshi/matchkeeper/internal/model"
	"github.com/hitoshi/matchkeeper/internal/photo"
	"github.com/hitoshi/matchkeeper/internal/security"
	"github.com/hitoshi/matchkeeper/internal/session"
	"github.com/hitoshi/matchkeeper/internal/tinder"
)

const (
	defaultStatusPort = "9100"
	bioMaxLen         = 140
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、JSON構造化ログをセットアップしてから
// 環境変数からConfigを読み込む。writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既存の環境変数は上書きしない）
	dotEnvErr := config.LoadDotEnv(".env")

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	runID := logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	slog.Debug("logger initialized", slog.String("run_id", runID))
	if dotEnvErr != nil {
		slog.Warn("failed to load .env", slog.String("error", dotEnvErr.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応する処理を実行する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("STATUS_PORT")
		if port == "" {
			port = defaultStatusPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("store_base_path", cfg.StoreBasePath),
	)

	// SIGTERMは実行全体を止める。SIGINTはステップごとに扱う（runner.step）。
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	r := newRunner(cfg, slog.Default())

	if cfg.StatusPort != "" {
		shutdown := r.startStatusServer(cfg.StatusPort)
		defer shutdown()
	}

	switch cmd {
	case CommandRefresh:
		return r.runRefresh(ctx)
	case CommandLike:
		return r.runLike(ctx, args[1:])
	default:
		return r.runSync(ctx)
	}
}

// authenticator は認証トークンを扱うAPIクライアントの部分。
type authenticator interface {
	SetToken(token string)
	Authenticate(ctx context.Context, facebookToken, facebookID string) (*model.AuthResult, error)
	UserID() string
}

// runner は1回の実行に必要な依存関係をまとめる。
type runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	auth      authenticator
	ctrl      *session.Controller
	board     *handler.StatusBoard
	registry  *prometheus.Registry
	interrupt func(parent context.Context) (context.Context, context.CancelFunc)
}

// newRunner は全依存関係をワイヤリングする。
func newRunner(cfg *config.Config, log *slog.Logger) *runner {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	var collector metrics.MetricsCollector = metrics.NewCollector(registry)

	// 2. セキュリティサービス
	guard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer(bioMaxLen)

	// 3. 写真ダウンローダーとAPIクライアント
	downloader := photo.NewDownloader(guard, collector, log, cfg.PhotoTimeout, cfg.PhotoMaxSize)
	client := tinder.NewClient(
		&http.Client{Timeout: cfg.APITimeout},
		log, cfg.APIBaseURL, cfg.APIRatePerMin, collector,
	)

	// 4. セッション
	ctrl := session.New(client, session.Config{
		StoreBasePath: cfg.StoreBasePath,
		PhotoFetcher:  downloader,
		Metrics:       collector,
		Formatter:     sanitizer,
		Logger:        log,
	})

	return &runner{
		cfg:      cfg,
		logger:   log,
		auth:     client,
		ctrl:     ctrl,
		board:    handler.NewStatusBoard(),
		registry: registry,
		interrupt: func(parent context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(parent, os.Interrupt)
		},
	}
}

// step は1つの処理をSIGINTでキャンセル可能なコンテキストで実行する。
// 割り込みはそのステップだけを止め、次のステップは新しいコンテキストで始まる。
func (r *runner) step(parent context.Context, name string, fn func(ctx context.Context) error) error {
	if err := parent.Err(); err != nil {
		return err
	}
	ctx, stop := r.interrupt(parent)
	defer stop()

	r.board.Update(func(s *handler.Status) { s.Step = name })
	err := fn(ctx)
	r.publish(err)
	return err
}

// publish はセッションの状態をステータスボードに反映する。
func (r *runner) publish(err error) {
	r.board.Update(func(s *handler.Status) {
		s.Step = "idle"
		if p := r.ctrl.Profile(); p != nil {
			s.AccountID = p.ID
		}
		if st := r.ctrl.Store(); st != nil {
			s.StoreRoot = st.Root()
		}
		s.People = r.ctrl.Catalog().Len()
		s.Matches = len(r.ctrl.Catalog().Matches())
		if r.ctrl.RemainingLikes() != session.InitialRemainingLikes {
			n := r.ctrl.RemainingLikes()
			s.LikesRemaining = &n
		}
		s.LastError = ""
		if err != nil {
			s.LastError = err.Error()
		}
	})
}

// logBatch はバッチ結果をまとめて出力する。
func (r *runner) logBatch(name string, result session.BatchResult) {
	msg := fmt.Sprintf("%s が完了しました", name)
	if result.Cancelled {
		msg = fmt.Sprintf("%s は途中でキャンセルされました", name)
	}
	r.logger.Info(msg,
		slog.Int("added", result.Added),
		slog.Int("updated", result.Updated),
		slog.Int("up_to_date", result.UpToDate),
		slog.Int("skipped", result.Skipped),
		slog.Bool("cancelled", result.Cancelled),
	)
}

// authenticate は設定に応じてトークンを設定するかログインする。
func (r *runner) authenticate(ctx context.Context) error {
	if r.cfg.HasAuthToken() {
		r.auth.SetToken(r.cfg.AuthToken)
		return nil
	}
	return r.step(ctx, "authenticate", func(ctx context.Context) error {
		if _, err := r.auth.Authenticate(ctx, r.cfg.FacebookToken, r.cfg.FacebookID); err != nil {
			return err
		}
		r.logger.Info("認証しました", slog.String("user_id", r.auth.UserID()))
		return nil
	})
}

func (r *runner) bootstrap(ctx context.Context) error {
	if err := r.authenticate(ctx); err != nil {
		return err
	}
	return r.step(ctx, "bootstrap", r.ctrl.Bootstrap)
}

// runSync は認証、ストアの読み込み、おすすめの取得、マッチの更新を順に実行する。
func (r *runner) runSync(ctx context.Context) error {
	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	if err := r.step(ctx, "recommendations", func(ctx context.Context) error {
		result, err := r.ctrl.PullRecommendations(ctx)
		r.logBatch("おすすめの同期", result)
		return err
	}); err != nil {
		return err
	}

	return r.step(ctx, "updates", func(ctx context.Context) error {
		result, err := r.ctrl.PullUpdates(ctx)
		r.logBatch("マッチの更新", result)
		return err
	})
}

// runRefresh はストア内の既知の人物を再同期する。
func (r *runner) runRefresh(ctx context.Context) error {
	if err := r.bootstrap(ctx); err != nil {
		return err
	}
	return r.step(ctx, "refresh", func(ctx context.Context) error {
		result, err := r.ctrl.RefreshKnownPeople(ctx)
		if errors.Is(err, model.ErrStoreMissing) {
			r.logger.Warn("ストアがないため更新するものはありません",
				slog.String("error", err.Error()),
			)
			return nil
		}
		r.logBatch("ストアの更新", result)
		return err
	})
}

// runLike は指定された人物に順にライクを送る。
// カタログにいない人物は警告を出してスキップする。
func (r *runner) runLike(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return errors.New("like requires at least one person id")
	}
	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	return r.step(ctx, "like", func(ctx context.Context) error {
		for _, id := range ids {
			if ctx.Err() != nil {
				r.logger.Info("ライクをキャンセルしました")
				return nil
			}
			if _, err := r.ctrl.Like(ctx, id); err != nil {
				if errors.Is(err, model.ErrUnknownPerson) {
					continue
				}
				return err
			}
		}
		return nil
	})
}

// startStatusServer はヘルスチェックとメトリクスを提供するHTTPサーバーを起動する。
// 返り値の関数でグレースフルシャットダウンする。
func (r *runner) startStatusServer(port string) func() {
	router := handler.NewRouter(&handler.RouterDeps{
		Board:    r.board,
		Gatherer: r.registry,
		Logger:   r.logger,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		r.logger.Info("status server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("status server listen error", slog.String("error", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			r.logger.Error("status server shutdown failed", slog.String("error", err.Error()))
		}
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
