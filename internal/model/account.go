package model

import "encoding/json"

// Profile は認証済みアカウント自身のプロフィール。
// ストアのルートパスは Name と ID から決まる。
type Profile struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// AuthResult は認証APIのレスポンス。
type AuthResult struct {
	Token string `json:"token"`
	User  struct {
		ID string `json:"_id"`
	} `json:"user"`
}

// Match はマッチ情報を表す。Person は通常の人物レコードと同じ同一性ルールに従う。
type Match struct {
	ID     string `json:"_id"`
	Person Person `json:"person"`
}

// Updates は更新APIのレスポンス（マッチ一覧とブロック一覧）。
type Updates struct {
	Matches []Match  `json:"matches"`
	Blocks  []string `json:"blocks"`
}

// LikeResult はライクAPIのレスポンス。
// match はfalseまたはマッチ情報のオブジェクトで届く。
type LikeResult struct {
	Match          json.RawMessage `json:"match"`
	LikesRemaining int             `json:"likes_remaining"`
}

// IsMatch は相互マッチが成立したかを返す。
func (r *LikeResult) IsMatch() bool {
	return Truthy(r.Match)
}
