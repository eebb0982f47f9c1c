package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/config"
)

// opts はコマンドラインから渡される実行時のパラメータなのだ。
var opts struct {
	ListenAddr      string
	PromptsDir      string
	TextModel       string
	ImageModel      string
	TTSModel        string
	UpstreamTimeout time.Duration
	RateInterval    time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "storyboard-backend",
	Short: "AIストーリーボードアプリのバックエンドサービスなのだ。",
	Long: `台本からのストーリーボード生成、パネル画像の生成、読み上げ音声の合成を
Gemini APIへ中継するHTTPバックエンドなのだ。`,
	SilenceUsage: true,
}

// addAppFlags は、アプリケーション全般に適用されるフラグを定義するのだ。
func addAppFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&opts.ListenAddr, "addr", "a", config.DefaultListenAddr, "HTTPサーバーの待ち受けアドレスなのだ。")
	cmd.PersistentFlags().StringVarP(&opts.PromptsDir, "prompts-dir", "p", config.DefaultPromptsDir, "プロンプトテンプレート（*.yaml）のディレクトリなのだ。")
	cmd.PersistentFlags().StringVar(&opts.TextModel, "model", config.DefaultTextModel, "テキスト生成に使う Gemini モデル名なのだ。")
	cmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", config.DefaultImageModel, "画像生成に使う Gemini モデル名なのだ。")
	cmd.PersistentFlags().StringVar(&opts.TTSModel, "tts-model", config.DefaultTTSModel, "音声合成に使う Gemini モデル名なのだ。")
	cmd.PersistentFlags().DurationVar(&opts.UpstreamTimeout, "upstream-timeout", config.DefaultUpstreamTimeout, "上流APIリクエストのタイムアウトなのだ。")
	cmd.PersistentFlags().DurationVar(&opts.RateInterval, "rate-interval", 0, "上流呼び出しの最小間隔（0で無制限）なのだ。")
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
func Execute() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
