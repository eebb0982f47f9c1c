// Package api は、ストーリーボードアプリ向けのHTTPサーフェスを提供します。
// 各ハンドラはプロンプトを組み立てて Gemini へ中継し、結果を整形して返すだけの
// 薄い層で、共有する可変状態はスタイルセッションストアのみです。
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/gemini"
	"github.com/shouni/go-storyboard-kit/internal/prompt"
	"github.com/shouni/go-storyboard-kit/internal/session"
)

// AssetFetcher はURL参照のアセット画像を取得する依存です。
// go-http-kit のクライアントがこの形を満たします。
type AssetFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Server は全エンドポイントの依存を束ねます。
type Server struct {
	cfg              *config.Config
	store            *prompt.Store
	imagePrompt      *prompt.ImagePrompt
	storyboardPrompt *prompt.StoryboardPrompt
	client           *gemini.Client
	sessions         *session.Store
	fetcher          AssetFetcher
}

// NewServer は Server を生成します。
func NewServer(cfg *config.Config, store *prompt.Store, client *gemini.Client, sessions *session.Store, fetcher AssetFetcher) *Server {
	return &Server{
		cfg:              cfg,
		store:            store,
		imagePrompt:      prompt.NewImagePrompt(store),
		storyboardPrompt: prompt.NewStoryboardPrompt(store),
		client:           client,
		sessions:         sessions,
		fetcher:          fetcher,
	}
}

// Handler は全ルートをマウントした chi ルーターを返します。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Storyboard Backend API",
			"version": "1.0.0",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Post("/generate-image", s.handleGenerateImage)
		r.Post("/generate-suggestions", s.handleGenerateSuggestions)
		r.Post("/generate-style", s.handleGenerateStyle)
		r.Post("/analyze-style", s.handleAnalyzeStyle)

		r.Post("/create-style-session", s.handleCreateStyleSession)
		r.Get("/style-session/{projectId}", s.handleGetStyleSession)
		r.Delete("/style-session/{projectId}", s.handleDeleteStyleSession)

		r.Post("/generate-storyboard", s.handleGenerateStoryboard)
		r.Post("/analyze-story", s.handleAnalyzeStory)
		r.Post("/refine-script", s.handleRefineScript)

		r.Post("/generate-audio", s.handleGenerateAudio)
	})

	return r
}

// requireAPIKey は上流クレデンシャル未設定時に、全エンドポイントで
// 一様な「未設定」エラーを返すミドルウェアです。
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.GeminiAPIKey == "" {
			writeError(w, http.StatusInternalServerError, "API key not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
