package model

import (
	"fmt"
	"strings"
	"time"
)

// pingTimeLayout はタイムゾーンなしのping_timeの書式。UTCとして扱う。
const pingTimeLayout = "2006-01-02T15:04:05"

// ParsePingTime はping_timeを解析してUTCの時刻を返す。
// 小数秒は四捨五入せずに切り捨てる。"Z" や "+09:00" などのタイムゾーンは
// 小数秒の有無にかかわらず保持して解釈する。
func ParsePingTime(s string) (time.Time, error) {
	trimmed := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		trimmed = s[:i] + s[j:]
	}

	layout := pingTimeLayout
	if len(trimmed) > len(pingTimeLayout) {
		layout = time.RFC3339
	}
	t, err := time.Parse(layout, trimmed)
	if err != nil {
		return time.Time{}, NewInvalidRecordError(fmt.Sprintf("ping_timeを解析できません: %q", s))
	}
	return t.UTC(), nil
}
