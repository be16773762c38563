package person

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hitoshi/matchkeeper/internal/model"
	"github.com/hitoshi/matchkeeper/internal/store"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockStore はRecordStoreのテスト用モック。
type mockStore struct {
	saved    []string
	indexed  []string
	saveErr  error
	indexErr error
	saveCtx  context.Context
}

func (m *mockStore) Save(ctx context.Context, p *model.Person) error {
	m.saveCtx = ctx
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, p.ID)
	return nil
}

func (m *mockStore) IndexPerson(p *model.Person, indexDir string) error {
	if m.indexErr != nil {
		return m.indexErr
	}
	m.indexed = append(m.indexed, p.ID+"@"+indexDir)
	return nil
}

// mockRecorder はSyncRecorderのテスト用モック。
type mockRecorder struct {
	outcomes     []string
	indexSkipped int
}

func (m *mockRecorder) RecordPersonSynced(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockRecorder) RecordIndexSkipped() {
	m.indexSkipped++
}

func person(id, ping string) *model.Person {
	return &model.Person{
		ID:       id,
		Name:     "N" + id,
		PingTime: ping,
		Photos:   []model.Photo{{URL: "https://img/" + id, FileName: id + ".jpg"}},
	}
}

func TestSynchronizer_Sync_UnseenPersonIsAlwaysSaved(t *testing.T) {
	var buf bytes.Buffer
	ms := &mockStore{}
	rec := &mockRecorder{}
	catalog := NewCatalog()
	s := NewSynchronizer(ms, catalog, rec, newTestLogger(&buf))

	// ping_timeが解析できなくても未登録なら鮮度判定をしない
	p := person("p1", "not-a-time")
	outcome, err := s.Sync(context.Background(), p, "/idx")
	if err != nil {
		t.Fatalf("Sync がエラーを返した: %v", err)
	}
	if outcome != OutcomeAdded {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeAdded)
	}
	if len(ms.saved) != 1 || len(ms.indexed) != 1 || ms.indexed[0] != "p1@/idx" {
		t.Errorf("saved=%v indexed=%v", ms.saved, ms.indexed)
	}
	if got, ok := catalog.Get("p1"); !ok || got != p {
		t.Error("カタログに登録されるべき")
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "added" {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
	if !strings.Contains(buf.String(), "を追加しました") {
		t.Errorf("追加メッセージが出力されていない: %s", buf.String())
	}
}

func TestSynchronizer_Sync_NewerReplacesCached(t *testing.T) {
	var buf bytes.Buffer
	ms := &mockStore{}
	catalog := NewCatalog()
	catalog.Put(person("p1", "2015-01-01T00:00:00.000Z"))
	s := NewSynchronizer(ms, catalog, nil, newTestLogger(&buf))

	incoming := person("p1", "2015-01-02T00:00:00.000Z")
	outcome, err := s.Sync(context.Background(), incoming, "/matches")
	if err != nil {
		t.Fatalf("Sync がエラーを返した: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeUpdated)
	}
	if got, _ := catalog.Get("p1"); got != incoming {
		t.Error("カタログのエントリが置き換えられるべき")
	}
	if len(ms.indexed) != 1 || ms.indexed[0] != "p1@/matches" {
		t.Errorf("indexed = %v", ms.indexed)
	}
}

func TestSynchronizer_Sync_NotNewerDoesNoIO(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"同時刻", "2015-01-01T00:00:00.000Z"},
		{"古い", "2014-12-31T23:59:59.000Z"},
		{"小数秒のみ新しい", "2015-01-01T00:00:00.999Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ms := &mockStore{}
			catalog := NewCatalog()
			cached := person("p1", "2015-01-01T00:00:00.000Z")
			catalog.Put(cached)
			s := NewSynchronizer(ms, catalog, nil, newTestLogger(&buf))

			outcome, err := s.Sync(context.Background(), person("p1", tt.incoming), "/idx")
			if err != nil {
				t.Fatalf("Sync がエラーを返した: %v", err)
			}
			if outcome != OutcomeUpToDate {
				t.Errorf("outcome = %q, want %q", outcome, OutcomeUpToDate)
			}
			if len(ms.saved) != 0 || len(ms.indexed) != 0 {
				t.Errorf("I/Oが発生した: saved=%v indexed=%v", ms.saved, ms.indexed)
			}
			if got, _ := catalog.Get("p1"); got != cached {
				t.Error("カタログのエントリは変更されないべき")
			}
		})
	}
}

func TestSynchronizer_Sync_SaveErrorLeavesCatalogUntouched(t *testing.T) {
	var buf bytes.Buffer
	ms := &mockStore{saveErr: errors.New("disk full")}
	catalog := NewCatalog()
	s := NewSynchronizer(ms, catalog, nil, newTestLogger(&buf))

	if _, err := s.Sync(context.Background(), person("p1", "2015-01-01T00:00:00"), "/idx"); err == nil {
		t.Fatal("保存エラーが返されるべき")
	}
	if catalog.Has("p1") {
		t.Error("保存に失敗した人物はカタログに登録しない")
	}
	if len(ms.indexed) != 0 {
		t.Error("保存に失敗した場合はインデックスしない")
	}
}

func TestSynchronizer_Sync_NoPhotosIsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	ms := &mockStore{indexErr: model.NewNoPhotosError("Np1")}
	rec := &mockRecorder{}
	s := NewSynchronizer(ms, NewCatalog(), rec, newTestLogger(&buf))

	outcome, err := s.Sync(context.Background(), person("p1", "2015-01-01T00:00:00"), "/idx")
	if err != nil {
		t.Fatalf("NoPhotosError は呼び出し元に返さない: %v", err)
	}
	if outcome != OutcomeAdded {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeAdded)
	}
	if rec.indexSkipped != 1 {
		t.Errorf("indexSkipped = %d, want 1", rec.indexSkipped)
	}
}

func TestSynchronizer_Sync_OtherIndexErrorIsReturned(t *testing.T) {
	var buf bytes.Buffer
	ms := &mockStore{indexErr: errors.New("permission denied")}
	catalog := NewCatalog()
	s := NewSynchronizer(ms, catalog, nil, newTestLogger(&buf))

	_, err := s.Sync(context.Background(), person("p1", "2015-01-01T00:00:00"), "/idx")
	if err == nil {
		t.Fatal("インデックスエラーが返されるべき")
	}
	if !catalog.Has("p1") {
		t.Error("保存済みの人物はカタログに登録済みであるべき")
	}
}

func TestSynchronizer_Sync_CommitIgnoresCancellation(t *testing.T) {
	var buf bytes.Buffer
	ms := &mockStore{}
	s := NewSynchronizer(ms, NewCatalog(), nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Sync(ctx, person("p1", "2015-01-01T00:00:00"), "/idx"); err != nil {
		t.Fatalf("Sync がエラーを返した: %v", err)
	}
	if ms.saveCtx == nil || ms.saveCtx.Err() != nil {
		t.Error("保存はキャンセルされていないコンテキストで実行されるべき")
	}
}

func TestSynchronizer_Sync_InvalidRecord(t *testing.T) {
	var buf bytes.Buffer
	ms := &mockStore{}
	s := NewSynchronizer(ms, NewCatalog(), nil, newTestLogger(&buf))

	_, err := s.Sync(context.Background(), &model.Person{Name: "NoID"}, "/idx")
	if !errors.Is(err, model.ErrInvalidRecord) {
		t.Errorf("err = %v, want ErrInvalidRecord", err)
	}
}

// emptyFetcher は空の写真を返すPhotoFetcher。
type emptyFetcher struct{ calls int }

func (f *emptyFetcher) Open(_ context.Context, _ string) (io.ReadCloser, error) {
	f.calls++
	return io.NopCloser(strings.NewReader("img")), nil
}

func TestSynchronizer_Sync_IdempotentOnRealStore(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &emptyFetcher{}
	st := store.New(filepath.Join(t.TempDir(), "Me_1_store"), fetcher, newTestLogger(&buf))
	catalog := NewCatalog()
	s := NewSynchronizer(st, catalog, nil, newTestLogger(&buf))

	p, err := model.ParsePerson([]byte(`{"_id":"p1","name":"Ann","ping_time":"2015-01-01T00:00:00.000Z","photos":[{"url":"https://img/1","fileName":"1.jpg"}]}`))
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.Sync(context.Background(), p, st.IndexDir())
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Sync(context.Background(), p, st.IndexDir())
	if err != nil {
		t.Fatal(err)
	}

	if first != OutcomeAdded || second != OutcomeUpToDate {
		t.Errorf("outcomes = %q, %q, want added, up_to_date", first, second)
	}
	if fetcher.calls != 1 {
		t.Errorf("写真の取得回数 = %d, want 1", fetcher.calls)
	}
	entries, err := os.ReadDir(st.IndexDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("インデックスのリンク数 = %d, want 1", len(entries))
	}
	if catalog.Len() != 1 {
		t.Errorf("カタログの人数 = %d, want 1", catalog.Len())
	}
}
