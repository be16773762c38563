// Package photo はプロフィール写真のダウンロードを提供する。
package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/matchkeeper/internal/model"
)

// ErrTooLarge は写真が最大サイズを超えた場合のエラー。
var ErrTooLarge = errors.New("写真が最大サイズを超えています")

// URLValidator はSSRF検証のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// DownloadRecorder は写真ダウンロードのメトリクスを記録するインターフェース。
type DownloadRecorder interface {
	RecordPhotoDownloaded(bytes int64)
	RecordPhotoFailure()
}

// Downloader は写真URLを取得するstore.PhotoFetcherの実装。
// URLは取得前に検証し、レスポンスボディはmaxSizeバイトまでに制限する。
type Downloader struct {
	guard   URLValidator
	client  *http.Client
	metrics DownloadRecorder
	logger  *slog.Logger
	maxSize int64
}

// NewDownloader はDownloaderの新しいインスタンスを生成する。
func NewDownloader(guard URLValidator, metrics DownloadRecorder, logger *slog.Logger, timeout time.Duration, maxSize int64) *Downloader {
	return &Downloader{
		guard:   guard,
		client:  guard.NewSafeClient(timeout),
		metrics: metrics,
		logger:  logger,
		maxSize: maxSize,
	}
}

// Open は写真URLへGETリクエストを送り、ボディを返す。
// 検証失敗、通信失敗、200以外のステータスはPhotoFetchFailedErrorになる。
// 呼び出し元はボディを必ずCloseすること。
func (d *Downloader) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := d.guard.ValidateURL(rawURL); err != nil {
		d.logger.Warn("写真URLの検証に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, d.fail(rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, d.fail(rawURL, err)
	}
	req.Header.Set("User-Agent", "Matchkeeper/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("写真のダウンロードに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, d.fail(rawURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		d.logger.Error("写真サーバーがエラーステータスを返しました",
			slog.String("url", rawURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, d.fail(rawURL, fmt.Errorf("ステータス %d", resp.StatusCode))
	}

	if resp.ContentLength > d.maxSize {
		resp.Body.Close()
		return nil, d.fail(rawURL, ErrTooLarge)
	}

	return &limitedBody{d: d, rc: resp.Body, remaining: d.maxSize}, nil
}

func (d *Downloader) fail(rawURL string, err error) error {
	if d.metrics != nil {
		d.metrics.RecordPhotoFailure()
	}
	return model.NewPhotoFetchFailedError(rawURL, err)
}

// limitedBody は上限を超えて読もうとした時点でErrTooLargeを返すReadCloser。
// io.LimitReaderと違い、切り詰めた写真を正常終了として扱わない。
type limitedBody struct {
	d         *Downloader
	rc        io.ReadCloser
	remaining int64
	read      int64
	failed    bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		// 上限ちょうどで終わっているかを1バイト読んで確かめる
		var extra [1]byte
		n, err := b.rc.Read(extra[:])
		if n > 0 {
			b.failed = true
			return 0, ErrTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	b.read += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		b.failed = true
	}
	return n, err
}

func (b *limitedBody) Close() error {
	err := b.rc.Close()
	if b.d.metrics != nil {
		if b.failed {
			b.d.metrics.RecordPhotoFailure()
		} else {
			b.d.metrics.RecordPhotoDownloaded(b.read)
		}
	}
	return err
}
