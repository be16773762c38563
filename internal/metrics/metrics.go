// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期処理、APIクライアント、写真ダウンローダーから利用する。
type MetricsCollector interface {
	RecordPersonSynced(outcome string)
	RecordIndexSkipped()
	RecordPhotoDownloaded(bytes int64)
	RecordPhotoFailure()
	RecordAPIStatus(endpoint string, statusCode int)
	RecordAPILatency(duration time.Duration)
	RecordLike(matched bool)
	SetLikesRemaining(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	peopleSynced   *prometheus.CounterVec
	indexSkipped   prometheus.Counter
	photosSaved    prometheus.Counter
	photoBytes     prometheus.Counter
	photoFail      prometheus.Counter
	apiStatus      *prometheus.CounterVec
	apiLatency     prometheus.Histogram
	likes          *prometheus.CounterVec
	likesRemaining prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		peopleSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchkeeper_people_synced_total",
			Help: "同期結果別の人物数（added, updated, up_to_date）",
		}, []string{"outcome"}),
		indexSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchkeeper_index_skipped_total",
			Help: "写真がないためインデックスをスキップした人数",
		}),
		photosSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchkeeper_photos_downloaded_total",
			Help: "ダウンロードした写真の合計数",
		}),
		photoBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchkeeper_photo_bytes_total",
			Help: "ダウンロードした写真の合計バイト数",
		}),
		photoFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchkeeper_photo_download_fail_total",
			Help: "写真ダウンロード失敗の合計数",
		}),
		apiStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchkeeper_api_http_status_total",
			Help: "エンドポイントとHTTPステータスコード別のAPIレスポンス数",
		}, []string{"endpoint", "status_code"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "matchkeeper_api_latency_seconds",
			Help:    "API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		likes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchkeeper_likes_total",
			Help: "ライクの合計数（マッチ成立の有無別）",
		}, []string{"matched"}),
		likesRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matchkeeper_likes_remaining",
			Help: "最後のライクで返された残りライク数",
		}),
	}

	reg.MustRegister(
		c.peopleSynced,
		c.indexSkipped,
		c.photosSaved,
		c.photoBytes,
		c.photoFail,
		c.apiStatus,
		c.apiLatency,
		c.likes,
		c.likesRemaining,
	)

	return c
}

// RecordPersonSynced は1人分の同期結果を記録する。
func (c *Collector) RecordPersonSynced(outcome string) {
	c.peopleSynced.WithLabelValues(outcome).Inc()
}

// RecordIndexSkipped はインデックスのスキップを記録する。
func (c *Collector) RecordIndexSkipped() {
	c.indexSkipped.Inc()
}

// RecordPhotoDownloaded は写真のダウンロード完了を記録する。
func (c *Collector) RecordPhotoDownloaded(bytes int64) {
	c.photosSaved.Inc()
	c.photoBytes.Add(float64(bytes))
}

// RecordPhotoFailure は写真ダウンロードの失敗を記録する。
func (c *Collector) RecordPhotoFailure() {
	c.photoFail.Inc()
}

// RecordAPIStatus はAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordAPIStatus(endpoint string, statusCode int) {
	c.apiStatus.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordAPILatency はAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordAPILatency(duration time.Duration) {
	c.apiLatency.Observe(duration.Seconds())
}

// RecordLike はライクの結果を記録する。
func (c *Collector) RecordLike(matched bool) {
	c.likes.WithLabelValues(strconv.FormatBool(matched)).Inc()
}

// SetLikesRemaining は残りライク数を設定する。
func (c *Collector) SetLikesRemaining(n int) {
	c.likesRemaining.Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを渡されなかった場合に使う。
type Nop struct{}

func (Nop) RecordPersonSynced(string)      {}
func (Nop) RecordIndexSkipped()            {}
func (Nop) RecordPhotoDownloaded(int64)    {}
func (Nop) RecordPhotoFailure()            {}
func (Nop) RecordAPIStatus(string, int)    {}
func (Nop) RecordAPILatency(time.Duration) {}
func (Nop) RecordLike(bool)                {}
func (Nop) SetLikesRemaining(int)          {}
