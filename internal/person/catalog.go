package person

import (
	"maps"
	"slices"

	"github.com/hitoshi/matchkeeper/internal/model"
)

// Catalog はストアのメモリ上のミラー。
// 既知の人物、現在のマッチ一覧、マッチした人物、ブロック一覧を保持する。
// 単一のコントロールスレッドから操作される前提で、ロックは持たない。
type Catalog struct {
	people        map[string]*model.Person
	matches       []model.Match
	matchedPeople map[string]*model.Person
	blocks        []string
}

// NewCatalog は空のCatalogを生成する。
func NewCatalog() *Catalog {
	return &Catalog{
		people:        make(map[string]*model.Person),
		matchedPeople: make(map[string]*model.Person),
	}
}

// Load はストアから読み込んだ人物をまとめて登録する。
func (c *Catalog) Load(people map[string]*model.Person) {
	for id, p := range people {
		c.people[id] = p
	}
}

// Get は人物を返す。
func (c *Catalog) Get(id string) (*model.Person, bool) {
	p, ok := c.people[id]
	return p, ok
}

// Has は人物が登録済みかを返す。
func (c *Catalog) Has(id string) bool {
	_, ok := c.people[id]
	return ok
}

// Put は人物を登録または置き換える。
func (c *Catalog) Put(p *model.Person) {
	c.people[p.ID] = p
}

// Len は登録済みの人数を返す。
func (c *Catalog) Len() int {
	return len(c.people)
}

// IDs は登録済みIDのソート済みスナップショットを返す。
// 走査中にカタログを更新しても安全。
func (c *Catalog) IDs() []string {
	return slices.Sorted(maps.Keys(c.people))
}

// People は人物マップのコピーを返す。
func (c *Catalog) People() map[string]*model.Person {
	return maps.Clone(c.people)
}

// Matches は現在のマッチ一覧を返す。
func (c *Catalog) Matches() []model.Match {
	return slices.Clone(c.matches)
}

// ReplaceMatches はマッチ一覧を丸ごと置き換える。以前の一覧とはマージしない。
func (c *Catalog) ReplaceMatches(matches []model.Match) {
	c.matches = slices.Clone(matches)
}

// PutMatched はマッチした人物を登録する。
func (c *Catalog) PutMatched(p *model.Person) {
	c.matchedPeople[p.ID] = p
}

// MatchedPeople はマッチした人物マップのコピーを返す。
func (c *Catalog) MatchedPeople() map[string]*model.Person {
	return maps.Clone(c.matchedPeople)
}

// Blocks はブロック一覧を返す。
func (c *Catalog) Blocks() []string {
	return slices.Clone(c.blocks)
}

// SetBlocks はブロック一覧を置き換える。
func (c *Catalog) SetBlocks(blocks []string) {
	c.blocks = slices.Clone(blocks)
}
