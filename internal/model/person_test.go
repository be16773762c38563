package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParsePerson_PreservesRawBytes(t *testing.T) {
	data := []byte(`{"_id":"p1","name":"Alice","ping_time":"2014-12-01T10:00:00.123Z","bio":"hi","photos":[{"url":"https://img/1.jpg","fileName":"1.jpg","main":"main"}],"extra":{"nested":[1,2,3]}}`)

	p, err := ParsePerson(data)
	if err != nil {
		t.Fatalf("ParsePerson がエラーを返した: %v", err)
	}
	if p.ID != "p1" || p.Name != "Alice" {
		t.Errorf("ID/Name = %q/%q, want p1/Alice", p.ID, p.Name)
	}
	if len(p.Photos) != 1 || p.Photos[0].FileName != "1.jpg" {
		t.Fatalf("Photos = %+v", p.Photos)
	}
	if !p.Photos[0].IsMain() {
		t.Error(`"main":"main" は真として扱われるべき`)
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal がエラーを返した: %v", err)
	}
	if string(out) != string(data) {
		t.Errorf("往復後のバイト列が一致しない:\n got %s\nwant %s", out, data)
	}
}

func TestMatch_EmbeddedPersonKeepsRaw(t *testing.T) {
	data := []byte(`{"matches":[{"_id":"m1","person":{"_id":"p2","name":"Bob","ping_time":"2015-01-01T00:00:00","unknown":true}}],"blocks":["b1"]}`)

	var u Updates
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("Unmarshal がエラーを返した: %v", err)
	}
	if len(u.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(u.Matches))
	}
	want := `{"_id":"p2","name":"Bob","ping_time":"2015-01-01T00:00:00","unknown":true}`
	if string(u.Matches[0].Person.Raw) != want {
		t.Errorf("Raw = %s, want %s", u.Matches[0].Person.Raw, want)
	}
	if len(u.Blocks) != 1 || u.Blocks[0] != "b1" {
		t.Errorf("Blocks = %v", u.Blocks)
	}
}

func TestParsePerson_MissingID(t *testing.T) {
	_, err := ParsePerson([]byte(`{"name":"NoID"}`))
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("err = %v, want ErrInvalidRecord", err)
	}
}

func TestParsePerson_BrokenJSON(t *testing.T) {
	_, err := ParsePerson([]byte(`{"_id":`))
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("err = %v, want ErrInvalidRecord", err)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", false},
		{"null", false},
		{"false", false},
		{"true", true},
		{`""`, false},
		{`"main"`, true},
		{"0", false},
		{"1", true},
		{"[]", false},
		{"[1]", true},
		{"{}", false},
		{`{"_id":"x"}`, true},
		{"not-json", false},
	}
	for _, tt := range tests {
		if got := Truthy(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("Truthy(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestLikeResult_IsMatch(t *testing.T) {
	var r LikeResult
	if err := json.Unmarshal([]byte(`{"match":false,"likes_remaining":99}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.IsMatch() {
		t.Error("match:false はマッチではない")
	}
	if r.LikesRemaining != 99 {
		t.Errorf("LikesRemaining = %d, want 99", r.LikesRemaining)
	}

	if err := json.Unmarshal([]byte(`{"match":{"_id":"m"},"likes_remaining":98}`), &r); err != nil {
		t.Fatal(err)
	}
	if !r.IsMatch() {
		t.Error("match がオブジェクトの場合はマッチ成立")
	}
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := NewTransportError("/profile", 500)
	if !errors.Is(err, ErrTransport) {
		t.Error("TransportError は ErrTransport と一致するべき")
	}
	if errors.Is(err, ErrStoreMissing) {
		t.Error("TransportError は ErrStoreMissing と一致してはならない")
	}

	wrapped := WrapTransportError("/profile", errors.New("boom"))
	if !errors.Is(wrapped, ErrTransport) {
		t.Error("WrapTransportError も ErrTransport と一致するべき")
	}
	if wrapped.Unwrap() == nil {
		t.Error("Unwrap は原因エラーを返すべき")
	}
}
