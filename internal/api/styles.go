package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shouni/go-storyboard-kit/internal/gemini"
	"github.com/shouni/go-storyboard-kit/internal/prompt"
)

type suggestionsRequest struct {
	Prompt string `json:"prompt"`
}

// handleGenerateSuggestions はショットの続きを3案提案します。
// POST /api/generate-suggestions
//
// この操作は内部失敗を飲み込み、常に 200 と空リストへフォールバックします。
// エラーを返す改変はフロントエンドの挙動を壊すため不可です。
func (s *Server) handleGenerateSuggestions(w http.ResponseWriter, r *http.Request) {
	emptyFallback := func() {
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": []any{}})
	}

	var req suggestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		emptyFallback()
		return
	}

	userPrompt, err := s.store.Render("shot_suggestions", prompt.Variables{"current_shot": req.Prompt})
	if err != nil {
		slog.Error("Error generating suggestions", "error", err)
		emptyFallback()
		return
	}

	payload := &gemini.Request{
		Contents: []gemini.Content{gemini.TextContent(userPrompt)},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   s.store.ResponseSchema("shot_suggestions"),
		},
	}

	resp, err := s.client.GenerateContent(r.Context(), s.cfg.TextModel, payload)
	if err != nil {
		slog.Error("Error generating suggestions", "error", err)
		emptyFallback()
		return
	}

	text, err := resp.FirstText()
	if err != nil {
		text = "[]"
	}

	var suggestions []any
	if err := json.Unmarshal([]byte(text), &suggestions); err != nil {
		slog.Error("Error generating suggestions", "error", err)
		emptyFallback()
		return
	}
	if suggestions == nil {
		suggestions = []any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type styleGenerationRequest struct {
	Style string `json:"style"`
}

// handleGenerateStyle はスタイル名からスタイル参照画像を生成します。
// POST /api/generate-style
func (s *Server) handleGenerateStyle(w http.ResponseWriter, r *http.Request) {
	var req styleGenerationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Style == "" {
		writeError(w, http.StatusBadRequest, "style is required")
		return
	}

	slog.Info("Generating style reference", "style", req.Style)

	stylePrompt, err := s.store.Render("style_generation", prompt.Variables{"style": req.Style})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := &gemini.Request{
		Contents:         []gemini.Content{gemini.TextContent(stylePrompt)},
		GenerationConfig: &gemini.GenerationConfig{ResponseModalities: []string{"IMAGE"}},
	}

	resp, err := s.client.GenerateContent(r.Context(), s.cfg.ImageModel, payload)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	inline, err := resp.FirstInlineData()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No image data received")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"base64":   inline.Data,
		"mimeType": "image/png",
		"dataUrl":  "data:image/png;base64," + inline.Data,
	})
}

type styleAnalysisRequest struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// styleAnalysisFallback は analyze-style が失敗時に返す固定の代替応答です。
var styleAnalysisFallback = map[string]any{
	"style_description": "Custom uploaded style",
	"style_name":        "Custom Style",
	"characteristics": map[string]any{
		"medium":        "Unknown",
		"color_palette": "Varied",
		"lighting":      "Mixed",
		"texture":       "Original",
	},
}

// handleAnalyzeStyle はアップロード画像の画風を解析して構造化した説明を返します。
// POST /api/analyze-style
//
// 上流の失敗や不正なJSONにはエラーではなく固定のプレースホルダ応答を返します。
func (s *Server) handleAnalyzeStyle(w http.ResponseWriter, r *http.Request) {
	var req styleAnalysisRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ImageBase64 == "" {
		writeError(w, http.StatusBadRequest, "image_base64 is required")
		return
	}

	slog.Info("Analyzing style from uploaded image")

	vars := prompt.Variables{
		"image_data": req.ImageBase64,
		"mime_type":  req.MimeType,
	}

	systemPrompt, err := s.store.RenderSystemPrompt("style_analysis", vars)
	if err != nil {
		writeJSON(w, http.StatusOK, styleAnalysisFallback)
		return
	}
	userPrompt, err := s.store.Render("style_analysis", vars)
	if err != nil {
		writeJSON(w, http.StatusOK, styleAnalysisFallback)
		return
	}

	payload := &gemini.Request{
		Contents: []gemini.Content{{Parts: []gemini.Part{
			{Text: userPrompt},
			gemini.InlinePart(req.MimeType, req.ImageBase64),
		}}},
		SystemInstruction: gemini.SystemInstruction(systemPrompt),
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   s.store.ResponseSchema("style_analysis"),
		},
	}

	resp, err := s.client.GenerateContent(r.Context(), s.cfg.TextModel, payload)
	if err != nil {
		slog.Error("Style analysis failed", "error", err)
		writeJSON(w, http.StatusOK, styleAnalysisFallback)
		return
	}

	text, err := resp.FirstText()
	if err != nil {
		text = "{}"
	}

	var analysis map[string]any
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		writeJSON(w, http.StatusOK, styleAnalysisFallback)
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}
