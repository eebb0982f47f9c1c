package config

import (
	"time"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultTextModel       = "gemini-2.5-flash-preview-05-20"
	DefaultImageModel      = "gemini-2.5-flash-image-preview"
	DefaultTTSModel        = "gemini-2.5-flash-preview-tts"
	DefaultPromptsDir      = "prompts"
	DefaultListenAddr      = ":8009"
	DefaultUpstreamTimeout = 60 * time.Second
)

// Config はサービス全体の環境設定（APIキーやモデル名など）を保持する構造体なのだ。
type Config struct {
	GeminiAPIKey string
	TextModel    string // テキスト生成（ストーリーボード、提案、分析）用モデル
	ImageModel   string // 画像生成用モデル
	TTSModel     string // 音声合成用モデル
	PromptsDir   string
	ListenAddr   string

	UpstreamTimeout time.Duration
	RateInterval    time.Duration // 上流呼び出しの最小間隔（ゼロなら無制限）
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	return &Config{
		GeminiAPIKey:    envutil.GetEnv("GEMINI_API_KEY", ""),
		TextModel:       envutil.GetEnv("GEMINI_MODEL", DefaultTextModel),
		ImageModel:      envutil.GetEnv("IMAGE_GEMINI_MODEL", DefaultImageModel),
		TTSModel:        envutil.GetEnv("TTS_GEMINI_MODEL", DefaultTTSModel),
		PromptsDir:      envutil.GetEnv("PROMPTS_DIR", DefaultPromptsDir),
		ListenAddr:      envutil.GetEnv("LISTEN_ADDR", DefaultListenAddr),
		UpstreamTimeout: durationEnv("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
	}
}

// durationEnv は時間形式の環境変数を読むのだ。未設定や解析失敗は既定値になる。
func durationEnv(key string, def time.Duration) time.Duration {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
