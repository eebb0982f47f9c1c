package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/api"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/gemini"
	"github.com/shouni/go-storyboard-kit/internal/prompt"
	"github.com/shouni/go-storyboard-kit/internal/session"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTPサーバーを起動するのだ。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// runServe は、設定の読み込みから依存コンポーネントの組み立て、
// グレースフルシャットダウンまでのサーバーライフサイクルを担うのだ。
func runServe(cmd *cobra.Command) error {
	cfg := config.LoadConfig()
	applyFlagOverrides(cmd, cfg)

	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEYが未設定なのだ。上流APIを呼ぶエンドポイントはエラーを返すのだ。")
	}

	store := prompt.NewStore()
	if err := store.LoadDir(cfg.PromptsDir); err != nil {
		return fmt.Errorf("プロンプトテンプレートの読み込みに失敗しました: %w", err)
	}

	client := gemini.New(cfg.GeminiAPIKey,
		gemini.WithTimeout(cfg.UpstreamTimeout),
		gemini.WithRateInterval(cfg.RateInterval),
	)
	sessions := session.NewStore()
	fetcher := httpkit.New(cfg.UpstreamTimeout)

	server := api.NewServer(cfg, store, client, sessions, fetcher)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTPサーバーを起動するのだ", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーの起動に失敗しました: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("シャットダウン信号を受信したのだ。サーバーを停止するのだ。")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーの停止に失敗しました: %w", err)
	}
	return nil
}

// applyFlagOverrides は、明示的に指定されたフラグだけで環境変数設定を上書きするのだ。
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.ListenAddr = opts.ListenAddr
	}
	if flags.Changed("prompts-dir") {
		cfg.PromptsDir = opts.PromptsDir
	}
	if flags.Changed("model") {
		cfg.TextModel = opts.TextModel
	}
	if flags.Changed("image-model") {
		cfg.ImageModel = opts.ImageModel
	}
	if flags.Changed("tts-model") {
		cfg.TTSModel = opts.TTSModel
	}
	if flags.Changed("upstream-timeout") {
		cfg.UpstreamTimeout = opts.UpstreamTimeout
	}
	if flags.Changed("rate-interval") {
		cfg.RateInterval = opts.RateInterval
	}
}
