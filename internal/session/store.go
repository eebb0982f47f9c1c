package session

import (
	"github.com/patrickmn/go-cache"
)

// Store はプロジェクトIDとセッションの対応表を排他的に所有します。
// 裏側は go-cache のロック付きマップで、Add による作成は原子的です。
// セッションは明示的な削除かプロセス終了まで生き続けます。
type Store struct {
	sessions *cache.Cache
}

// NewStore は空の Store を生成します。
func NewStore() *Store {
	return &Store{sessions: cache.New(cache.NoExpiration, 0)}
}

// Create は projectID のセッションを無条件に作り直します。
// 既存の状態は破棄されます。
func (st *Store) Create(projectID, baseStyle string, styleImage *StyleImage) *Session {
	s := newSession(baseStyle, styleImage)
	st.sessions.Set(projectID, s, cache.NoExpiration)
	return s
}

// GetOrCreate は既存セッションを返し、無ければ与えられた初期値で作成します。
// 同じIDへの同時呼び出しが2つのレコードを生むことはありません。
func (st *Store) GetOrCreate(projectID, baseStyle string, styleImage *StyleImage) *Session {
	s := newSession(baseStyle, styleImage)
	if err := st.sessions.Add(projectID, s, cache.NoExpiration); err == nil {
		return s
	}
	if existing, ok := st.sessions.Get(projectID); ok {
		return existing.(*Session)
	}
	// Add と Get の間に Delete が割り込んだ稀なケースでは作り直す
	st.sessions.Set(projectID, s, cache.NoExpiration)
	return s
}

// Get は既存セッションを返します。
func (st *Store) Get(projectID string) (*Session, bool) {
	v, ok := st.sessions.Get(projectID)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// AppendGeneration はセッションの生成履歴に1件追記します。
// セッションが存在しない場合は何もせず false を返します。
func (st *Store) AppendGeneration(projectID, prompt, imageURL string, cinematography map[string]string) bool {
	s, ok := st.Get(projectID)
	if !ok {
		return false
	}
	s.Append(GeneratedImage{
		Prompt:         prompt,
		ImageURL:       imageURL,
		Cinematography: cinematography,
	})
	return true
}

// Delete はセッションを削除します。存在しないIDに対しても冪等です。
func (st *Store) Delete(projectID string) {
	st.sessions.Delete(projectID)
}
