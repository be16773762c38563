// Package store は1アカウント分の人物レコードをディレクトリ構造で永続化する。
//
// レイアウト:
//
//	<root>/<name>_<id>/profile.json
//	<root>/<name>_<id>/photos/<fileName>
//	<root>/index/<name>_<id><ext>    -> メイン写真へのシンボリックリンク
//	<root>/matches/<name>_<id><ext>  -> マッチした人物のみ
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"

	"github.com/hitoshi/matchkeeper/internal/model"
)

const (
	profileFileName = "profile.json"
	photosDirName   = "photos"
	indexDirName    = "index"
	matchesDirName  = "matches"
)

// PhotoFetcher は写真URLの内容を取得するインターフェース。
// 取得失敗はそのまま呼び出し元へ伝播する。
type PhotoFetcher interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Store はローカルファイルシステム上の人物ストア。
// 単一スレッドからの利用を前提とし、ロックは持たない。
type Store struct {
	root    string
	fetcher PhotoFetcher
	logger  *slog.Logger
}

// RootPath はアカウントの表示名とIDからストアのルートパスを組み立てる。
// 既存のストアと互換性を保つため "<name>_<id>_store" の形式を使う。
func RootPath(basePath string, account *model.Profile) string {
	return filepath.Join(basePath, fmt.Sprintf("%s_%s_store", account.Name, account.ID))
}

// New はStoreの新しいインスタンスを生成する。ディレクトリは作成しない。
func New(root string, fetcher PhotoFetcher, logger *slog.Logger) *Store {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = filepath.Clean(root)
	}
	return &Store{
		root:    absRoot,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Root はストアのルートパスを返す。
func (s *Store) Root() string {
	return s.root
}

// Exists はストアのルートディレクトリが存在するかを返す。
func (s *Store) Exists() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

// IndexDir は全人物用インデックスディレクトリのパスを返す。
func (s *Store) IndexDir() string {
	return filepath.Join(s.root, indexDirName)
}

// MatchesDir はマッチ用インデックスディレクトリのパスを返す。
func (s *Store) MatchesDir() string {
	return filepath.Join(s.root, matchesDirName)
}

// PersonDir は人物ディレクトリのパスを返す。
// 名前やIDにパス区切り文字が含まれ、ルート外を指す場合はエラーを返す。
func (s *Store) PersonDir(p *model.Person) (string, error) {
	if err := validateLeaf(p.DirName()); err != nil {
		return "", err
	}
	return s.confine(filepath.Join(s.root, p.DirName()))
}

// PhotoPath は写真ファイルの保存先パスを返す。
func (s *Store) PhotoPath(p *model.Person, photo model.Photo) (string, error) {
	dir, err := s.PersonDir(p)
	if err != nil {
		return "", err
	}
	if err := validateLeaf(photo.FileName); err != nil {
		return "", err
	}
	return s.confine(filepath.Join(dir, photosDirName, photo.FileName))
}

// LoadAll はストア内の全人物ディレクトリを列挙し、profile.jsonを読み込む。
// profile.jsonを持たないディレクトリ（index、matchesを含む）は黙ってスキップする。
// ctxがキャンセルされた場合はその時点までの結果を返す。
// ルートが存在しない場合は空のマップとStoreMissingErrorを返す。
func (s *Store) LoadAll(ctx context.Context) (map[string]*model.Person, error) {
	people := make(map[string]*model.Person)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return people, model.NewStoreMissingError(s.root)
		}
		return people, fmt.Errorf("ストアの列挙に失敗しました: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	natsort.Sort(names)

	for _, name := range names {
		if ctx.Err() != nil {
			s.logger.Info("人物の読み込みを中断しました",
				slog.Int("loaded", len(people)),
			)
			return people, nil
		}

		data, err := os.ReadFile(filepath.Join(s.root, name, profileFileName))
		if err != nil {
			continue
		}

		p, err := model.ParsePerson(data)
		if err != nil {
			s.logger.Warn("profile.jsonを読み込めないためスキップします",
				slog.String("dir", name),
				slog.String("error", err.Error()),
			)
			continue
		}

		if prev, ok := people[p.ID]; ok && !newerThan(prev, p) {
			s.logger.Warn("同じIDの古いプロフィールを無視します",
				slog.String("person_id", p.ID),
				slog.String("dir", name),
				slog.String("kept", prev.DirName()),
			)
			continue
		}
		people[p.ID] = p
		s.logger.Debug("プロフィールを読み込みました",
			slog.String("person_id", p.ID),
			slog.String("name", p.Name),
		)
	}

	s.logger.Info("人物を読み込みました",
		slog.Int("count", len(people)),
		slog.String("root", s.root),
	)
	return people, nil
}

// newerThan はcandidateのping_timeがprevより厳密に新しいかを返す。
// ping_timeを解析できないレコードは優先しない。
func newerThan(prev, candidate *model.Person) bool {
	candTime, err := model.ParsePingTime(candidate.PingTime)
	if err != nil {
		return false
	}
	prevTime, err := model.ParsePingTime(prev.PingTime)
	if err != nil {
		return true
	}
	return candTime.After(prevTime)
}

// Save は人物ディレクトリと写真ディレクトリを作成し、profile.jsonを書き込んだ後に
// 各写真を取得して保存する。同名の写真ファイルは上書きされる。
// profile.jsonは写真より先に書き込むため、写真だけが残る状態にはならない。
func (s *Store) Save(ctx context.Context, p *model.Person) error {
	if err := p.Validate(); err != nil {
		return err
	}
	dir, err := s.PersonDir(p)
	if err != nil {
		return err
	}
	photosDir := filepath.Join(dir, photosDirName)
	if err := os.MkdirAll(photosDir, 0755); err != nil {
		return fmt.Errorf("写真ディレクトリの作成に失敗しました '%s': %w", photosDir, err)
	}

	raw, err := p.MarshalJSON()
	if err != nil {
		return fmt.Errorf("プロフィールのシリアライズに失敗しました: %w", err)
	}
	profilePath := filepath.Join(dir, profileFileName)
	if err := os.WriteFile(profilePath, raw, 0644); err != nil {
		return fmt.Errorf("profile.jsonの書き込みに失敗しました '%s': %w", profilePath, err)
	}

	for _, photo := range p.Photos {
		if err := s.savePhoto(ctx, p, photo); err != nil {
			return err
		}
	}

	s.logger.Info("人物を保存しました",
		slog.String("person_id", p.ID),
		slog.String("name", p.Name),
		slog.Int("photos", len(p.Photos)),
	)
	return nil
}

func (s *Store) savePhoto(ctx context.Context, p *model.Person, photo model.Photo) error {
	dest, err := s.PhotoPath(p, photo)
	if err != nil {
		return err
	}

	body, err := s.fetcher.Open(ctx, photo.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("写真ファイルの作成に失敗しました '%s': %w", dest, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(dest)
		return model.NewPhotoFetchFailedError(photo.URL, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("写真ファイルのクローズに失敗しました '%s': %w", dest, err)
	}
	return nil
}

// SelectMainPhoto はインデックスに使うメイン写真を選ぶ。
// 写真列を逆順に走査して最初にmainが真のものを選び、
// 1枚もなければ元の順序の先頭を返す。写真がなければfalseを返す。
func SelectMainPhoto(photos []model.Photo) (model.Photo, bool) {
	if len(photos) == 0 {
		return model.Photo{}, false
	}
	for i := len(photos) - 1; i >= 0; i-- {
		if photos[i].IsMain() {
			return photos[i], true
		}
	}
	return photos[0], true
}

// IndexPerson はindexDirにメイン写真へのシンボリックリンクを作成する。
// リンク名は "<name>_<id>" にメイン写真の拡張子を付けたもの。
// 既存のエントリ（壊れたリンクを含む）は先に削除するため、繰り返し呼んでも
// 1人につきリンクは1つだけになる。写真がない場合はNoPhotosErrorを返す。
func (s *Store) IndexPerson(p *model.Person, indexDir string) error {
	photo, ok := SelectMainPhoto(p.Photos)
	if !ok {
		return model.NewNoPhotosError(p.Name)
	}

	target, err := s.PhotoPath(p, photo)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return fmt.Errorf("インデックスディレクトリの作成に失敗しました '%s': %w", indexDir, err)
	}

	link := filepath.Join(indexDir, p.DirName()+filepath.Ext(photo.FileName))
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("既存リンクの削除に失敗しました '%s': %w", link, err)
		}
	}
	// 拡張子や名前が変わった場合に古いリンクが残らないようにする
	if err := removeStaleLinks(indexDir, p.ID); err != nil {
		return err
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("リンクの作成に失敗しました '%s': %w", link, err)
	}

	s.logger.Info("人物をインデックスしました",
		slog.String("person_id", p.ID),
		slog.String("name", p.Name),
		slog.String("index", filepath.Base(indexDir)),
	)
	return nil
}

// removeStaleLinks はindexDir内にある同じIDのリンクを削除する。
func removeStaleLinks(indexDir, id string) error {
	entries, err := os.ReadDir(indexDir)
	if err != nil {
		return fmt.Errorf("インデックスディレクトリの列挙に失敗しました '%s': %w", indexDir, err)
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 || !isLinkFor(e.Name(), id) {
			continue
		}
		path := filepath.Join(indexDir, e.Name())
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("古いリンクの削除に失敗しました '%s': %w", path, err)
		}
	}
	return nil
}

// isLinkFor はリンク名が "<任意の名前>_<id>" に拡張子を0個か1個付けた形かを判定する。
func isLinkFor(linkName, id string) bool {
	base := strings.TrimSuffix(linkName, filepath.Ext(linkName))
	if strings.HasSuffix(linkName, "_"+id) {
		base = linkName
	}
	name, ok := strings.CutSuffix(base, "_"+id)
	return ok && name != ""
}

// confine はパスがストアのルート配下に収まっていることを確認する。
func (s *Store) confine(path string) (string, error) {
	clean := filepath.Clean(path)
	if clean != s.root && !strings.HasPrefix(clean, s.root+string(filepath.Separator)) {
		return "", model.NewInvalidRecordError(fmt.Sprintf("パスがストアの外を指しています: %s", path))
	}
	return clean, nil
}

// validateLeaf はディレクトリ名やファイル名が単一のパス要素であることを確認する。
func validateLeaf(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return model.NewInvalidRecordError(fmt.Sprintf("パス要素として使えない名前です: %q", name))
	}
	return nil
}
