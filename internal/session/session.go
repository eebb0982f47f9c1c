// Package session は、プロジェクト単位の「スタイルセッション」を管理します。
// 一連のパネル生成で画風を揃えるための軽量なインメモリ状態で、
// プロセスの寿命を超えて永続化はされません。
package session

import (
	"slices"
	"strings"
	"sync"
)

// StyleImage はセッションに紐づくスタイル参照画像です。
type StyleImage struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// GeneratedImage は生成履歴の1エントリです。
type GeneratedImage struct {
	Prompt         string            `json:"prompt"`
	ImageURL       string            `json:"image_url"`
	Cinematography map[string]string `json:"cinematography"`
}

// State はセッションの観測可能な状態です。JSON表現はAPI応答にそのまま使われます。
// StyleKeywords は現状どの生成経路からも書き込まれませんが、
// 応答形状の互換性のために保持しています。
type State struct {
	BaseStyle         string           `json:"base_style"`
	StyleImage        *StyleImage      `json:"style_image"`
	GeneratedImages   []GeneratedImage `json:"generated_images"`
	StyleKeywords     []string         `json:"style_keywords"`
	ConsistencyPrompt string           `json:"consistency_prompt"`
}

// Session は1プロジェクト分のスタイルセッションです。
// 履歴の追記と読み取りはセッション自身のロックで直列化されます。
type Session struct {
	mu    sync.Mutex
	state State
}

func newSession(baseStyle string, styleImage *StyleImage) *Session {
	return &Session{state: State{
		BaseStyle:       baseStyle,
		StyleImage:      styleImage,
		GeneratedImages: []GeneratedImage{},
		StyleKeywords:   []string{},
	}}
}

// Snapshot は状態のコピーを返します。返り値は呼び出し元が自由に使えます。
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.GeneratedImages = slices.Clone(s.state.GeneratedImages)
	st.StyleKeywords = slices.Clone(s.state.StyleKeywords)
	return st
}

// Append は生成履歴に1件追記します。
func (s *Session) Append(entry GeneratedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.GeneratedImages = append(s.state.GeneratedImages, entry)
}

// HasHistory は過去の生成が1件以上あるかを返します。
func (s *Session) HasHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.GeneratedImages) > 0
}

// ConsistencySuffix は、プロンプトの末尾に付ける一貫性指示を組み立てます。
// 履歴もスタイルキーワードも無い新規セッションには空文字を返します。
func (s *Session) ConsistencySuffix() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var elements []string
	if len(s.state.StyleKeywords) > 0 {
		elements = append(elements, "Maintain consistent style elements: "+strings.Join(s.state.StyleKeywords, ", "))
	}
	if len(s.state.GeneratedImages) > 0 {
		elements = append(elements, "Maintain visual consistency with previous panels in this sequence")
	}
	if len(elements) == 0 {
		return ""
	}
	return " " + strings.Join(elements, ". ") + "."
}
