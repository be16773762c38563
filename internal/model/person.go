// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"fmt"
)

// Person はリモートAPIから取得した人物レコードを表す。
// Raw は受信した（またはprofile.jsonから読み込んだ）JSONそのもので、
// 保存時はこのバイト列をそのまま書き戻す。その他のフィールドは Raw から
// デコードした読み取り専用のビュー。
type Person struct {
	ID       string
	Name     string
	PingTime string
	Bio      string
	Photos   []Photo
	Raw      json.RawMessage
}

// Photo は人物レコードに含まれる写真を表す。
type Photo struct {
	ID       string          `json:"id,omitempty"`
	URL      string          `json:"url"`
	FileName string          `json:"fileName"`
	Main     json.RawMessage `json:"main,omitempty"` // bool または文字列で届くことがある
}

// IsMain はmainフラグが真値として評価できるかを返す。
func (p Photo) IsMain() bool {
	return Truthy(p.Main)
}

type personFields struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name"`
	PingTime string  `json:"ping_time"`
	Bio      string  `json:"bio,omitempty"`
	Photos   []Photo `json:"photos"`
}

// UnmarshalJSON は既知フィールドをデコードしつつ、元のバイト列を Raw に保持する。
func (p *Person) UnmarshalJSON(data []byte) error {
	var f personFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	p.ID = f.ID
	p.Name = f.Name
	p.PingTime = f.PingTime
	p.Bio = f.Bio
	p.Photos = f.Photos
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON は Raw をそのまま返す。未知フィールドを含めて往復で変化しない。
func (p Person) MarshalJSON() ([]byte, error) {
	if len(p.Raw) == 0 {
		return json.Marshal(personFields{
			ID:       p.ID,
			Name:     p.Name,
			PingTime: p.PingTime,
			Bio:      p.Bio,
			Photos:   p.Photos,
		})
	}
	return p.Raw, nil
}

// Validate は保存とインデックスに必要なフィールドが揃っているかを検証する。
func (p *Person) Validate() error {
	if p.ID == "" {
		return NewInvalidRecordError("_id がありません")
	}
	if p.Name == "" {
		return NewInvalidRecordError(fmt.Sprintf("name がありません: %s", p.ID))
	}
	return nil
}

// DirName は人物ディレクトリやインデックスのリンク名に使う "<name>_<id>" を返す。
func (p *Person) DirName() string {
	return p.Name + "_" + p.ID
}

// ParsePerson はJSONバイト列から Person を生成し、検証する。
func ParsePerson(data []byte) (*Person, error) {
	var p Person
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, NewInvalidRecordError(fmt.Sprintf("JSONのパースに失敗しました: %v", err))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Truthy はJSON値を真偽値として評価する。
// false, null, 空文字列, 0, 空の配列/オブジェクト, 欠落は偽、それ以外は真。
func Truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}
