package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-storyboard-kit/internal/gemini"
	"github.com/shouni/go-storyboard-kit/internal/prompt"
	"github.com/shouni/go-storyboard-kit/internal/session"
	"github.com/shouni/go-storyboard-kit/pkg/imgutil"
)

// maxImageRequestBytes は generate-image リクエストボディの上限です。
// インライン画像を複数積むと巨大になるため、ここで弾きます。
const maxImageRequestBytes = 45 << 20

type assetImage struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url,omitempty"`
}

type imageGenerationRequest struct {
	Prompt             string            `json:"prompt"`
	Style              string            `json:"style"`
	Cinematography     map[string]string `json:"cinematography"`
	RefPrev            bool              `json:"refPrev"`
	PreviousImageURL   string            `json:"previousImageUrl"`
	StyleImageBase64   string            `json:"styleImageBase64"`
	StyleImageMimeType string            `json:"styleImageMimeType"`
	AssetImages        []assetImage      `json:"assetImages"`
	ProjectStyleID     string            `json:"projectStyleId"`

	// 省略時は true（一貫性維持がデフォルト）
	MaintainConsistency *bool `json:"maintainConsistency"`
}

// handleGenerateImage は1フレーム分の画像を生成して 16:9 のJPEGデータURLで返します。
// POST /api/generate-image
func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageRequestBytes)

	var req imageGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				"Request too large. Please reduce image sizes or number of assets.")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	style := req.Style
	if style == "" {
		style = prompt.DefaultStyle
	}
	maintain := req.MaintainConsistency == nil || *req.MaintainConsistency
	usePrev := req.RefPrev && req.PreviousImageURL != ""

	slog.Info("Generating image", "prompt", truncate(req.Prompt, 50), "style", style)

	finalPrompt, err := s.imagePrompt.Build(req.Prompt, style, usePrev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// スタイルセッションによる一貫性維持
	var sess *session.Session
	if maintain && req.ProjectStyleID != "" {
		var styleImg *session.StyleImage
		if req.StyleImageBase64 != "" {
			styleImg = &session.StyleImage{Base64: req.StyleImageBase64, MimeType: req.StyleImageMimeType}
		}
		sess = s.sessions.GetOrCreate(req.ProjectStyleID, style, styleImg)
		if sess.HasHistory() {
			finalPrompt += " Maintain visual consistency with the established style and cinematography of this sequence."
		}
	}

	parts := []gemini.Part{{Text: finalPrompt}}

	assetParts, err := s.resolveAssetImages(r.Context(), req.AssetImages)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	parts = append(parts, assetParts...)

	if req.StyleImageBase64 != "" {
		parts = append(parts, gemini.InlinePart(req.StyleImageMimeType, req.StyleImageBase64))
	}

	if usePrev {
		if part, err := partFromDataURL(req.PreviousImageURL); err != nil {
			slog.Warn("Failed to process previous image", "error", err)
		} else {
			parts = append(parts, part)
		}
	}

	payload := &gemini.Request{
		Contents:         []gemini.Content{{Parts: parts}},
		GenerationConfig: &gemini.GenerationConfig{ResponseModalities: []string{"IMAGE"}},
	}

	resp, err := s.client.GenerateContent(r.Context(), s.cfg.ImageModel, payload)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	inline, err := resp.FirstInlineData()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No image data received from API")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No image data received from API")
		return
	}

	cropped, err := imgutil.CenterCropToAspect(raw, imgutil.DefaultAspectRatio)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Image cropping failed: %v", err))
		return
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(cropped)

	if sess != nil {
		s.sessions.AppendGeneration(req.ProjectStyleID, req.Prompt, imageURL, req.Cinematography)
	}

	writeJSON(w, http.StatusOK, map[string]string{"imageUrl": imageURL})
}

// resolveAssetImages はアセット画像をインラインパートへ変換します。
// base64 が入っていればそのまま、URL参照なら並列で取得してエンコードします。
func (s *Server) resolveAssetImages(ctx context.Context, assets []assetImage) ([]gemini.Part, error) {
	if len(assets) == 0 {
		return nil, nil
	}

	parts := make([]gemini.Part, len(assets))
	eg, egCtx := errgroup.WithContext(ctx)

	for i, asset := range assets {
		if asset.Base64 != "" {
			parts[i] = gemini.InlinePart(asset.MimeType, asset.Base64)
			continue
		}
		if asset.URL == "" {
			continue
		}

		i, asset := i, asset
		eg.Go(func() error {
			data, err := s.fetcher.FetchBytes(egCtx, asset.URL)
			if err != nil {
				return fmt.Errorf("failed to fetch asset image '%s': %w", asset.URL, err)
			}
			mimeType := asset.MimeType
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}
			parts[i] = gemini.InlinePart(mimeType, base64.StdEncoding.EncodeToString(data))
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	resolved := parts[:0]
	for _, p := range parts {
		if p.InlineData != nil {
			resolved = append(resolved, p)
		}
	}
	return resolved, nil
}

// partFromDataURL は "data:image/png;base64,...." 形式の前フレーム参照を
// インラインパートへ変換します。
func partFromDataURL(dataURL string) (gemini.Part, error) {
	header, data, ok := strings.Cut(dataURL, ",")
	if !ok || data == "" {
		return gemini.Part{}, fmt.Errorf("malformed data URL")
	}
	meta := strings.TrimPrefix(header, "data:")
	mimeType, _, _ := strings.Cut(meta, ";")
	if mimeType == "" {
		return gemini.Part{}, fmt.Errorf("data URL has no MIME type")
	}
	return gemini.InlinePart(mimeType, data), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
