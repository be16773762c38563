package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status は直近の同期状態のスナップショット。
type Status struct {
	AccountID      string    `json:"account_id,omitempty"`
	StoreRoot      string    `json:"store_root,omitempty"`
	Step           string    `json:"step"`
	People         int       `json:"people"`
	Matches        int       `json:"matches"`
	LikesRemaining *int      `json:"likes_remaining,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StatusBoard は同期処理が書き込み、ステータスサーバーが読み取る共有状態。
// 同期処理のゴルーチンとHTTPハンドラーの間で共有するためロックで保護する。
type StatusBoard struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

// NewStatusBoard は初期状態（idle）のStatusBoardを生成する。
func NewStatusBoard() *StatusBoard {
	b := &StatusBoard{now: time.Now}
	b.status = Status{Step: "idle", UpdatedAt: b.now()}
	return b
}

// Update はロックを取得した状態でfnを呼び、更新時刻を記録する。
func (b *StatusBoard) Update(fn func(s *Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.status)
	b.status.UpdatedAt = b.now()
}

// Snapshot は現在の状態のコピーを返す。
func (b *StatusBoard) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.status
	if s.LikesRemaining != nil {
		n := *s.LikesRemaining
		s.LikesRemaining = &n
	}
	return s
}

// StatusHandler は /health を処理する。
type StatusHandler struct {
	board *StatusBoard
}

// NewStatusHandler はStatusHandlerを生成する。
func NewStatusHandler(board *StatusBoard) *StatusHandler {
	return &StatusHandler{board: board}
}

// Health は現在の状態をJSONで返す。プロセスが応答できる限り200を返す。
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Health string `json:"status"`
		Status
	}{
		Health: "ok",
		Status: h.board.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
