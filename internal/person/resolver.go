// Package person は人物レコードの同期処理を提供する。
// 鮮度判定（Resolver）、メモリ上のカタログ、ストアとカタログを一致させる
// Synchronizer を含む。
package person

import (
	"fmt"

	"github.com/hitoshi/matchkeeper/internal/model"
)

// IsNewer はincomingのping_timeがcachedより厳密に新しい場合にtrueを返す。
// 同時刻は「最新」とみなし、更新しない。
func IsNewer(cached, incoming *model.Person) (bool, error) {
	cachedTime, err := model.ParsePingTime(cached.PingTime)
	if err != nil {
		return false, fmt.Errorf("保存済みレコード %s: %w", cached.ID, err)
	}
	incomingTime, err := model.ParsePingTime(incoming.PingTime)
	if err != nil {
		return false, fmt.Errorf("受信レコード %s: %w", incoming.ID, err)
	}
	return incomingTime.After(cachedTime), nil
}
