// Package session はアカウント単位の同期セッションを制御する。
//
// Controller はAPIクライアント、ストア、カタログ、同期処理をまとめ、
// おすすめの取得、既知の人物の再同期、マッチの更新、ライクを提供する。
// 長い処理は人物ごとの境界でctxを確認し、キャンセルされていれば
// それまでの結果を残して終了する（Running -> Cancelling -> Idle）。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/hitoshi/matchkeeper/internal/metrics"
	"github.com/hitoshi/matchkeeper/internal/model"
	"github.com/hitoshi/matchkeeper/internal/person"
	"github.com/hitoshi/matchkeeper/internal/store"
)

// InitialRemainingLikes はまだライクしていない時点の残りライク数。
const InitialRemainingLikes = math.MaxInt

// ErrNotBootstrapped はBootstrap前に操作が呼ばれた場合のエラー。
var ErrNotBootstrapped = errors.New("セッションが初期化されていません")

// APIClient はControllerが利用するAPIの境界。
type APIClient interface {
	FetchOwnProfile(ctx context.Context) (*model.Profile, error)
	FetchRecommendations(ctx context.Context) ([]*model.Person, error)
	FetchUpdates(ctx context.Context) (*model.Updates, error)
	Like(ctx context.Context, id string) (*model.LikeResult, error)
}

// Recorder はセッションが記録するメトリクスのインターフェース。
type Recorder interface {
	person.SyncRecorder
	RecordLike(matched bool)
	SetLikesRemaining(n int)
}

// TextFormatter は自由記述をログ向けのプレーンテキストにする。
type TextFormatter interface {
	PlainText(raw string) string
}

// Config はControllerの依存関係と設定。
type Config struct {
	StoreBasePath string
	PhotoFetcher  store.PhotoFetcher
	Metrics       Recorder
	Formatter     TextFormatter
	Logger        *slog.Logger
}

// BatchResult は一括同期の結果。
type BatchResult struct {
	Added     int
	Updated   int
	UpToDate  int
	Skipped   int
	Cancelled bool
}

// Total は処理した人数を返す。
func (r BatchResult) Total() int {
	return r.Added + r.Updated + r.UpToDate
}

func (r *BatchResult) count(o person.Outcome) {
	switch o {
	case person.OutcomeAdded:
		r.Added++
	case person.OutcomeUpdated:
		r.Updated++
	case person.OutcomeUpToDate:
		r.UpToDate++
	}
}

// LikeOutcome はライクの結果。
type LikeOutcome struct {
	Person         *model.Person
	Matched        bool
	LikesRemaining int
}

// Controller は1アカウント分のセッション。
// 単一のゴルーチンから利用することを前提とする。
type Controller struct {
	api            APIClient
	cfg            Config
	logger         *slog.Logger
	catalog        *person.Catalog
	store          *store.Store
	sync           *person.Synchronizer
	profile        *model.Profile
	remainingLikes int
}

// New はControllerの新しいインスタンスを生成する。
func New(api APIClient, cfg Config) *Controller {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Formatter == nil {
		cfg.Formatter = passthrough{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		api:            api,
		cfg:            cfg,
		logger:         cfg.Logger,
		catalog:        person.NewCatalog(),
		remainingLikes: InitialRemainingLikes,
	}
}

// Catalog はセッションのカタログを返す。
func (c *Controller) Catalog() *person.Catalog {
	return c.catalog
}

// Store はBootstrap後のストアを返す。Bootstrap前はnil。
func (c *Controller) Store() *store.Store {
	return c.store
}

// Profile は自分のプロフィールを返す。Bootstrap前はnil。
func (c *Controller) Profile() *model.Profile {
	return c.profile
}

// RemainingLikes は最後のライクで返された残りライク数を返す。
// まだライクしていない場合はInitialRemainingLikes。
func (c *Controller) RemainingLikes() int {
	return c.remainingLikes
}

// Bootstrap は自分のプロフィールを取得してストアのルートを決め、
// ストア内の人物をカタログに読み込む。ストアがまだない場合は初回実行として扱う。
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.logger.Info("プロフィールを要求しています")
	profile, err := c.api.FetchOwnProfile(ctx)
	if err != nil {
		return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	c.profile = profile
	c.logger.Info("プロフィールを読み込みました",
		slog.String("account_id", profile.ID),
		slog.String("name", profile.Name),
	)

	c.store = store.New(store.RootPath(c.cfg.StoreBasePath, profile), c.cfg.PhotoFetcher, c.logger)
	c.sync = person.NewSynchronizer(c.store, c.catalog, c.cfg.Metrics, c.logger)
	c.logger.Info("ストアのパスを設定しました", slog.String("root", c.store.Root()))

	people, err := c.store.LoadAll(ctx)
	if err != nil {
		if errors.Is(err, model.ErrStoreMissing) {
			c.logger.Info("ストアがまだ存在しないため人物を読み込めません",
				slog.String("root", c.store.Root()),
			)
			return nil
		}
		return err
	}
	c.catalog.Load(people)
	c.logger.Info(fmt.Sprintf("%d 人を読み込みました", c.catalog.Len()))
	return nil
}

// PullRecommendations はおすすめを取得し、1人ずつ全人物用インデックスへ同期する。
func (c *Controller) PullRecommendations(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	if c.store == nil {
		return result, ErrNotBootstrapped
	}

	c.logger.Info("おすすめを要求しています")
	recs, err := c.api.FetchRecommendations(ctx)
	if err != nil {
		if c.cancelled(ctx, "おすすめの要求") {
			result.Cancelled = true
			return result, nil
		}
		return result, fmt.Errorf("おすすめの取得に失敗しました: %w", err)
	}
	c.logger.Info(fmt.Sprintf("おすすめが %d 件あります", len(recs)))

	for _, p := range recs {
		if c.cancelled(ctx, "おすすめの同期") {
			result.Cancelled = true
			return result, nil
		}
		if p == nil {
			result.Skipped++
			continue
		}
		c.describe(p)
		outcome, err := c.sync.Sync(ctx, p, c.store.IndexDir())
		if err != nil {
			return result, err
		}
		result.count(outcome)
	}

	c.logger.Info(fmt.Sprintf("合計 %d 人になりました", c.catalog.Len()),
		slog.Int("added", result.Added),
		slog.Int("updated", result.Updated),
		slog.Int("up_to_date", result.UpToDate),
	)
	return result, nil
}

// RefreshKnownPeople はカタログ内の全員を自分自身と同期し直す。
// 比較対象が同じレコードなので通常は全員が最新と判定され、I/Oは発生しない。
// ストアのルートが存在しない場合はカタログに触れずにStoreMissingErrorを返す。
func (c *Controller) RefreshKnownPeople(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	if c.store == nil {
		return result, ErrNotBootstrapped
	}
	if !c.store.Exists() {
		c.logger.Info("ストアが存在しないため更新できません", slog.String("root", c.store.Root()))
		return result, model.NewStoreMissingError(c.store.Root())
	}

	// IDsはスナップショットなので、同期中にカタログが変わっても安全に走査できる
	for _, id := range c.catalog.IDs() {
		if c.cancelled(ctx, "ストアの更新") {
			result.Cancelled = true
			return result, nil
		}
		p, ok := c.catalog.Get(id)
		if !ok {
			continue
		}
		outcome, err := c.sync.Sync(ctx, p, c.store.IndexDir())
		if err != nil {
			return result, err
		}
		result.count(outcome)
	}
	return result, nil
}

// PullUpdates は現在のマッチとブロックを取得する。
// カタログのマッチ一覧は丸ごと置き換え、各マッチの人物をマッチ用インデックスへ同期して
// マッチ済みの人物として登録する。
func (c *Controller) PullUpdates(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	if c.store == nil {
		return result, ErrNotBootstrapped
	}

	c.logger.Info("アップデートを要求しています")
	updates, err := c.api.FetchUpdates(ctx)
	if err != nil {
		if c.cancelled(ctx, "アップデートの要求") {
			result.Cancelled = true
			return result, nil
		}
		return result, fmt.Errorf("アップデートの取得に失敗しました: %w", err)
	}
	c.catalog.ReplaceMatches(updates.Matches)
	c.catalog.SetBlocks(updates.Blocks)

	c.logger.Info("マッチを更新しています", slog.Int("matches", len(updates.Matches)))
	for _, m := range updates.Matches {
		if c.cancelled(ctx, "マッチの更新") {
			result.Cancelled = true
			return result, nil
		}
		if m.Person.ID == "" {
			c.logger.Warn("人物情報のないマッチをスキップします", slog.String("match_id", m.ID))
			result.Skipped++
			continue
		}

		p := m.Person
		c.logger.Info(fmt.Sprintf("%s とのマッチを更新しています", p.Name))
		outcome, err := c.sync.Sync(ctx, &p, c.store.MatchesDir())
		if err != nil {
			return result, err
		}
		if outcome == person.OutcomeUpToDate {
			if err := c.indexMatch(p.ID); err != nil {
				return result, err
			}
		}
		c.catalog.PutMatched(&p)
		result.count(outcome)
		c.logger.Info(fmt.Sprintf("%s とのマッチを更新しました", p.Name))
	}

	c.logger.Info(fmt.Sprintf("%d 件のマッチを更新しました", len(updates.Matches)),
		slog.Int("blocks", len(updates.Blocks)),
	)
	return result, nil
}

// indexMatch は最新と判定されたマッチの保存済みレコードをマッチ用インデックスへ登録する。
// 推薦として先に同期された人物は、マッチ用のリンクをまだ持っていないことがある。
func (c *Controller) indexMatch(id string) error {
	cached, ok := c.catalog.Get(id)
	if !ok {
		return nil
	}
	if err := c.store.IndexPerson(cached, c.store.MatchesDir()); err != nil {
		if errors.Is(err, model.ErrNoPhotos) {
			return nil
		}
		return fmt.Errorf("%s のマッチ用インデックスに失敗しました: %w", cached.Name, err)
	}
	return nil
}

// Like はカタログにいる人物にライクを送る。
// カタログにいない場合はリクエストを送らずUnknownPersonErrorを返す。
// 残りライク数はマッチの成否にかかわらず更新する。
func (c *Controller) Like(ctx context.Context, id string) (*LikeOutcome, error) {
	p, ok := c.catalog.Get(id)
	if !ok {
		c.logger.Info("この人物は知りません", slog.String("person_id", id))
		return nil, model.NewUnknownPersonError(id)
	}

	c.logger.Info(fmt.Sprintf("%s にライクしています", p.Name), slog.String("person_id", id))
	result, err := c.api.Like(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s へのライクに失敗しました: %w", p.Name, err)
	}

	matched := result.IsMatch()
	if matched {
		c.logger.Info(fmt.Sprintf("%s とマッチしました！", p.Name), slog.String("person_id", id))
	}
	c.remainingLikes = result.LikesRemaining
	c.cfg.Metrics.RecordLike(matched)
	c.cfg.Metrics.SetLikesRemaining(c.remainingLikes)
	c.logger.Info(fmt.Sprintf("残りライク数は %d です", c.remainingLikes))

	return &LikeOutcome{
		Person:         p,
		Matched:        matched,
		LikesRemaining: c.remainingLikes,
	}, nil
}

// cancelled はループの境界やAPI呼び出しの失敗時にキャンセルを確認する。
func (c *Controller) cancelled(ctx context.Context, step string) bool {
	if ctx.Err() == nil {
		return false
	}
	c.logger.Info(fmt.Sprintf("%sをキャンセルしました", step))
	return true
}

func (c *Controller) describe(p *model.Person) {
	if p.Bio == "" {
		return
	}
	c.logger.Debug("おすすめの人物",
		slog.String("person_id", p.ID),
		slog.String("name", p.Name),
		slog.String("bio", c.cfg.Formatter.PlainText(p.Bio)),
	)
}

type passthrough struct{}

func (passthrough) PlainText(raw string) string { return raw }
