package person

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/matchkeeper/internal/model"
)

// RecordStore は人物の保存とインデックスを行うストアのインターフェース。
type RecordStore interface {
	Save(ctx context.Context, p *model.Person) error
	IndexPerson(p *model.Person, indexDir string) error
}

// SyncRecorder は同期結果をメトリクスとして記録するインターフェース。
type SyncRecorder interface {
	RecordPersonSynced(outcome string)
	RecordIndexSkipped()
}

// Outcome は1人分の同期結果。
type Outcome string

const (
	// OutcomeAdded は未登録の人物を新規に保存したことを示す。
	OutcomeAdded Outcome = "added"
	// OutcomeUpdated はより新しいping_timeのレコードで上書きしたことを示す。
	OutcomeUpdated Outcome = "updated"
	// OutcomeUpToDate は保存済みレコードが最新で、I/Oを行わなかったことを示す。
	OutcomeUpToDate Outcome = "up_to_date"
)

// Synchronizer は人物レコードの更新が必ず通る唯一の経路。
// ストアへの保存・インデックスとカタログの更新を常に組で行う。
type Synchronizer struct {
	store   RecordStore
	catalog *Catalog
	metrics SyncRecorder
	logger  *slog.Logger
}

// NewSynchronizer はSynchronizerの新しいインスタンスを生成する。
// metricsがnilの場合は記録しない。
func NewSynchronizer(store RecordStore, catalog *Catalog, metrics SyncRecorder, logger *slog.Logger) *Synchronizer {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Synchronizer{
		store:   store,
		catalog: catalog,
		metrics: metrics,
		logger:  logger,
	}
}

// Sync は1人分のレコードを同期する。
//
//  1. カタログにないIDは鮮度判定をせずに保存・登録・インデックスする（added）
//  2. 登録済みならping_timeを比較し、新しければ保存・置換・インデックスする（updated）
//  3. 新しくなければ何もしない（up_to_date）
//
// indexDirには通常の同期では全人物用、マッチの同期ではマッチ用のディレクトリを渡す。
// 保存とインデックスはキャンセルの影響を受けず、途中で中断されない。
func (s *Synchronizer) Sync(ctx context.Context, incoming *model.Person, indexDir string) (Outcome, error) {
	if err := incoming.Validate(); err != nil {
		return "", err
	}

	outcome := OutcomeAdded
	if cached, ok := s.catalog.Get(incoming.ID); ok {
		newer, err := IsNewer(cached, incoming)
		if err != nil {
			return "", err
		}
		if !newer {
			s.logger.Info(fmt.Sprintf("%s はストア上で最新です", incoming.Name),
				slog.String("person_id", incoming.ID),
				slog.String("outcome", string(OutcomeUpToDate)),
			)
			s.metrics.RecordPersonSynced(string(OutcomeUpToDate))
			return OutcomeUpToDate, nil
		}
		outcome = OutcomeUpdated
	}

	if outcome == OutcomeAdded {
		s.logger.Info(fmt.Sprintf("%s をストアに追加します", incoming.Name),
			slog.String("person_id", incoming.ID),
		)
	} else {
		s.logger.Info(fmt.Sprintf("%s をストアで更新します", incoming.Name),
			slog.String("person_id", incoming.ID),
		)
	}

	commitCtx := context.WithoutCancel(ctx)
	if err := s.store.Save(commitCtx, incoming); err != nil {
		return "", fmt.Errorf("%s の保存に失敗しました: %w", incoming.Name, err)
	}
	s.catalog.Put(incoming)

	if err := s.store.IndexPerson(incoming, indexDir); err != nil {
		if !errors.Is(err, model.ErrNoPhotos) {
			return outcome, fmt.Errorf("%s のインデックスに失敗しました: %w", incoming.Name, err)
		}
		s.logger.Info(fmt.Sprintf("%s は写真がないためインデックスをスキップしました", incoming.Name),
			slog.String("person_id", incoming.ID),
		)
		s.metrics.RecordIndexSkipped()
	}

	if outcome == OutcomeAdded {
		s.logger.Info(fmt.Sprintf("%s を追加しました", incoming.Name),
			slog.String("person_id", incoming.ID),
			slog.String("outcome", string(outcome)),
		)
	} else {
		s.logger.Info(fmt.Sprintf("%s を更新しました", incoming.Name),
			slog.String("person_id", incoming.ID),
			slog.String("outcome", string(outcome)),
		)
	}
	s.metrics.RecordPersonSynced(string(outcome))
	return outcome, nil
}

type nopRecorder struct{}

func (nopRecorder) RecordPersonSynced(string) {}
func (nopRecorder) RecordIndexSkipped()       {}
