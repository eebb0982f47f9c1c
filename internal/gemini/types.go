package gemini

import (
	"errors"
	"fmt"
)

// Part はリクエスト/レスポンス共通のコンテンツ断片です。
// テキストかインラインデータのどちらか一方を持ちます。
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData は MIME タイプ付きの base64 エンコード済みバイナリです。
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content は Part の並びです。
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig は generateContent の生成パラメータです。
type GenerationConfig struct {
	ResponseModalities []string       `json:"responseModalities,omitempty"`
	ResponseMIMEType   string         `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]any `json:"responseSchema,omitempty"`
}

// Request は generateContent のリクエストボディです。
type Request struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	Model             string            `json:"model,omitempty"`
}

// TextContent は単一テキストパートの Content を作るヘルパーです。
func TextContent(text string) Content {
	return Content{Parts: []Part{{Text: text}}}
}

// SystemInstruction はシステムプロンプト用の Content を作ります。
// 空文字には nil を返すので、そのまま Request に渡せます。
func SystemInstruction(text string) *Content {
	if text == "" {
		return nil
	}
	c := TextContent(text)
	return &c
}

// InlinePart は base64 済みデータからインラインパートを作ります。
func InlinePart(mimeType, data string) Part {
	return Part{InlineData: &InlineData{MimeType: mimeType, Data: data}}
}

// Response は generateContent の応答です。
// このシステムが参照するのは candidates[0].content.parts のみです。
type Response struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate は1つの生成候補です。
type Candidate struct {
	Content Content `json:"content"`
}

// ErrMalformedResponse は、成功応答に期待したフィールドが
// 存在しなかったことを表します。欠落は既定値への読み替えではなく
// ハードエラーとして扱います。
var ErrMalformedResponse = errors.New("unexpected response structure from generation API")

// FirstText は最初の候補からテキストを持つパートを探して返します。
func (r *Response) FirstText() (string, error) {
	parts, err := r.firstParts()
	if err != nil {
		return "", err
	}
	for _, part := range parts {
		if part.Text != "" {
			return part.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text part in candidate", ErrMalformedResponse)
}

// FirstInlineData は最初の候補からインラインデータを持つパートを探して返します。
func (r *Response) FirstInlineData() (*InlineData, error) {
	parts, err := r.firstParts()
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		if part.InlineData != nil {
			return part.InlineData, nil
		}
	}
	return nil, fmt.Errorf("%w: no inline data part in candidate", ErrMalformedResponse)
}

func (r *Response) firstParts() ([]Part, error) {
	if len(r.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: candidate has no parts", ErrMalformedResponse)
	}
	return parts, nil
}
