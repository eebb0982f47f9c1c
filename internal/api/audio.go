package api

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shouni/go-storyboard-kit/internal/gemini"
	"github.com/shouni/go-storyboard-kit/pkg/wavutil"
)

type audioGenerationRequest struct {
	Text string `json:"text"`
}

// handleGenerateAudio はテキストを読み上げ音声に変換してWAVで返します。
// 上流は生のリニアPCMを返すため、ここでWAVコンテナに包みます。
// POST /api/generate-audio
func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	var req audioGenerationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required for audio generation")
		return
	}

	slog.Info("Generating audio", "text", truncate(req.Text, 50))

	payload := &gemini.Request{
		Contents:         []gemini.Content{gemini.TextContent(req.Text)},
		GenerationConfig: &gemini.GenerationConfig{ResponseModalities: []string{"AUDIO"}},
		Model:            s.cfg.TTSModel,
	}

	resp, err := s.client.GenerateContent(r.Context(), s.cfg.TTSModel, payload)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	inline, err := resp.FirstInlineData()
	if err != nil || !strings.HasPrefix(inline.MimeType, "audio/") {
		writeError(w, http.StatusInternalServerError, "Invalid audio data received")
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Invalid audio data received")
		return
	}

	sampleRate := wavutil.SampleRateFromMIME(inline.MimeType)
	wav := wavutil.WrapPCM(pcm, sampleRate, wavutil.DefaultChannels, wavutil.DefaultBitsPerSample)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", "attachment; filename=audio.wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}
