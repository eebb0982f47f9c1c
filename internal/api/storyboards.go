package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shouni/go-storyboard-kit/internal/gemini"
	"github.com/shouni/go-storyboard-kit/internal/prompt"
)

type storyboardGenerationRequest struct {
	Script       string `json:"script"`
	TemplateType string `json:"templateType"`
	PanelCount   int    `json:"panelCount"`
}

// handleGenerateStoryboard は台本からパネル構成を生成します。
// テンプレート種別が指定されていればそのテンプレートを、
// なければ既定の台本解析テンプレートを使います。
// POST /api/generate-storyboard
func (s *Server) handleGenerateStoryboard(w http.ResponseWriter, r *http.Request) {
	var req storyboardGenerationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Script) == "" {
		writeError(w, http.StatusBadRequest, "script is required")
		return
	}
	if req.PanelCount <= 0 {
		req.PanelCount = prompt.DefaultStoryboardPanel
	}

	slog.Info("Generating storyboard", "template", req.TemplateType, "panels", req.PanelCount)

	var systemPrompt, userPrompt string
	var schema map[string]any
	var err error

	if req.TemplateType != "" {
		systemPrompt, userPrompt, schema, err = s.storyboardPrompt.Build(req.TemplateType, req.Script, req.PanelCount)
	} else {
		vars := prompt.Variables{"script": req.Script}
		if systemPrompt, err = s.store.RenderSystemPrompt("script_analysis", vars); err == nil {
			userPrompt, err = s.store.Render("script_analysis", vars)
		}
		schema = s.store.ResponseSchema("script_analysis")
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Storyboard generation failed: %v", err))
		return
	}

	payload := &gemini.Request{
		Contents:          []gemini.Content{gemini.TextContent(userPrompt)},
		SystemInstruction: gemini.SystemInstruction(systemPrompt),
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	}

	resp, err := s.client.GenerateContent(r.Context(), s.cfg.TextModel, payload)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	text, err := resp.FirstText()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "AI returned an empty response")
		return
	}

	var panels any
	if err := json.Unmarshal([]byte(text), &panels); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Storyboard generation failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"panels": panels})
}

type storyAnalysisRequest struct {
	Panels []map[string]any `json:"panels"`
}

// minPanelsForAnalysis は物語分析に必要な最小パネル数です。
const minPanelsForAnalysis = 3

// handleAnalyzeStory はパネル列を1本の台本にまとめて物語構造を分析します。
// POST /api/analyze-story
func (s *Server) handleAnalyzeStory(w http.ResponseWriter, r *http.Request) {
	var req storyAnalysisRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Panels) < minPanelsForAnalysis {
		writeError(w, http.StatusBadRequest, "Need at least 3 panels to perform story analysis")
		return
	}

	slog.Info("Analyzing story", "panels", len(req.Panels))

	sections := make([]string, 0, len(req.Panels))
	for i, panel := range req.Panels {
		sections = append(sections, fmt.Sprintf("Panel %d:\nPROMPT: %s\nAUDIO: %s",
			i+1, stringField(panel, "prompt"), stringField(panel, "audio")))
	}
	fullScript := strings.Join(sections, "\n\n")

	vars := prompt.Variables{"storyboard_script": fullScript}
	systemPrompt, err := s.store.RenderSystemPrompt("story_analysis", vars)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Story analysis failed: %v", err))
		return
	}
	userPrompt, err := s.store.Render("story_analysis", vars)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Story analysis failed: %v", err))
		return
	}

	payload := &gemini.Request{
		Contents:          []gemini.Content{gemini.TextContent(userPrompt)},
		SystemInstruction: gemini.SystemInstruction(systemPrompt),
	}

	resp, err := s.client.GenerateContent(r.Context(), s.cfg.TextModel, payload)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	// 分析テキストが取り出せない場合は空文字を返す（この端点のみの明示的フォールバック）
	analysis, err := resp.FirstText()
	if err != nil {
		analysis = ""
	}

	writeJSON(w, http.StatusOK, map[string]string{"analysis": analysis})
}

type scriptRefinementRequest struct {
	NaturalLanguage string `json:"natural_language"`
}

// handleRefineScript は自然文の説明を構造化された台本に書き直します。
// POST /api/refine-script
func (s *Server) handleRefineScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRefinementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.NaturalLanguage) == "" {
		writeError(w, http.StatusBadRequest, "Natural language description is required")
		return
	}

	slog.Info("Refining natural language to script", "input", truncate(req.NaturalLanguage, 50))

	vars := prompt.Variables{"natural_language": req.NaturalLanguage}
	systemPrompt, err := s.store.RenderSystemPrompt("script_refinement", vars)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Script refinement failed: %v", err))
		return
	}
	userPrompt, err := s.store.Render("script_refinement", vars)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Script refinement failed: %v", err))
		return
	}

	payload := &gemini.Request{
		Contents:          []gemini.Content{gemini.TextContent(userPrompt)},
		SystemInstruction: gemini.SystemInstruction(systemPrompt),
	}

	resp, err := s.client.GenerateContent(r.Context(), s.cfg.TextModel, payload)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	refined, err := resp.FirstText()
	if err != nil || refined == "" {
		writeError(w, http.StatusInternalServerError, "AI returned an empty script")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"refined_script": refined})
}

// stringField はパネルマップから文字列フィールドを取り出します。欠落は "N/A" です。
func stringField(panel map[string]any, key string) string {
	if v, ok := panel[key].(string); ok && v != "" {
		return v
	}
	return "N/A"
}
