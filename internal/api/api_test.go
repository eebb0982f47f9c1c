package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/gemini"
	"github.com/shouni/go-storyboard-kit/internal/prompt"
	"github.com/shouni/go-storyboard-kit/internal/session"
)

// testTemplates はエンドポイントが参照する最小構成のテンプレート群
var testTemplates = map[string]string{
	"image_generation_simple.yaml": `
template: "{{ style }} style. {{ prompt }}"
variables:
  - name: prompt
    required: true
  - name: style
    default: "Cinematic Realism"
  - name: use_previous_context
    default: false
`,
	"shot_suggestions.yaml": `
template: "Current shot: {{ current_shot }}"
response_schema:
  type: ARRAY
  items:
    type: STRING
variables:
  - name: current_shot
    required: true
`,
	"style_generation.yaml": `
template: "Reference image for {{ style }}"
variables:
  - name: style
    required: true
`,
	"style_analysis.yaml": `
system_prompt: "You analyze image styles."
template: "Describe the style of the attached image."
response_schema:
  type: OBJECT
`,
	"script_analysis.yaml": `
system_prompt: "You break scripts into panels."
template: "Script: {{ script }}"
response_schema:
  type: ARRAY
variables:
  - name: script
    required: true
`,
	"story_analysis.yaml": `
system_prompt: "You review storyboards."
template: "{{ storyboard_script }}"
variables:
  - name: storyboard_script
    required: true
`,
	"script_refinement.yaml": `
system_prompt: "You write scripts."
template: "Rewrite: {{ natural_language }}"
variables:
  - name: natural_language
    required: true
`,
	"cinematic_template.yaml": `
system_prompt: "Cinematic storyboard artist."
template: "{{ panel_count }} panels for: {{ context }}"
response_schema:
  type: ARRAY
variables:
  - name: context
    required: true
  - name: panel_count
    default: 8
`,
}

type stubFetcher struct {
	data []byte
	err  error
}

func (f *stubFetcher) FetchBytes(_ context.Context, _ string) ([]byte, error) {
	return f.data, f.err
}

// testEnv は偽の上流と結線済みのハンドラ一式
type testEnv struct {
	handler  http.Handler
	sessions *session.Store
	calls    *atomic.Int64
	lastBody *[]byte
}

// newTestEnv はテンポラリのテンプレートディレクトリと偽のGemini上流で
// Server を組み立てるのだ。upstream が nil のときは到達不能な上流になる。
func newTestEnv(t *testing.T, apiKey string, upstream http.HandlerFunc) *testEnv {
	t.Helper()

	dir := t.TempDir()
	for name, content := range testTemplates {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	store := prompt.NewStore()
	require.NoError(t, store.LoadDir(dir))

	var calls atomic.Int64
	var lastBody []byte
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body := new(bytes.Buffer)
		_, _ = body.ReadFrom(r.Body)
		lastBody = body.Bytes()
		if upstream == nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down"}}`))
			return
		}
		upstream(w, r)
	}))
	t.Cleanup(fake.Close)

	cfg := &config.Config{
		GeminiAPIKey: apiKey,
		TextModel:    "text-model",
		ImageModel:   "image-model",
		TTSModel:     "tts-model",
	}
	client := gemini.New(apiKey, gemini.WithBaseURL(fake.URL))
	sessions := session.NewStore()
	server := NewServer(cfg, store, client, sessions, &stubFetcher{})

	return &testEnv{
		handler:  server.Handler(),
		sessions: sessions,
		calls:    &calls,
		lastBody: &lastBody,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// textUpstream は常に指定テキストを1パートで返す偽の上流
func textUpstream(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// inlineUpstream は常に指定のインラインデータを返す偽の上流
func inlineUpstream(mimeType, b64 string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{
						"inlineData": map[string]any{"mimeType": mimeType, "data": b64},
					}},
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// encodePNG は単色のPNGをエンコードして返すヘルパー
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t, "test-key", nil)

	rec := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Storyboard Backend API", decodeBody(t, rec)["message"])

	rec = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestRequireAPIKey(t *testing.T) {
	env := newTestEnv(t, "", nil)

	endpoints := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/generate-image"},
		{http.MethodPost, "/api/generate-suggestions"},
		{http.MethodPost, "/api/generate-storyboard"},
		{http.MethodPost, "/api/generate-audio"},
		{http.MethodGet, "/api/style-session/p1"},
	}
	for _, ep := range endpoints {
		rec := env.do(t, ep.method, ep.path, map[string]any{})
		require.Equal(t, http.StatusInternalServerError, rec.Code, ep.path)
		require.Equal(t, "API key not configured", decodeBody(t, rec)["detail"], ep.path)
	}
	require.Zero(t, env.calls.Load())
}

func TestGenerateSuggestions(t *testing.T) {
	t.Run("上流障害時は200と空リストへフォールバックすること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/generate-suggestions",
			map[string]string{"prompt": "wide shot"})

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []any{}, decodeBody(t, rec)["suggestions"])
		require.Equal(t, int64(1), env.calls.Load())
	})

	t.Run("空プロンプトは上流を呼ばずに空リストを返すこと", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/generate-suggestions", map[string]string{})

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []any{}, decodeBody(t, rec)["suggestions"])
		require.Zero(t, env.calls.Load())
	})

	t.Run("上流のJSON配列がそのまま提案として返ること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", textUpstream(`["close-up on face","pan left"]`))

		rec := env.do(t, http.MethodPost, "/api/generate-suggestions",
			map[string]string{"prompt": "wide shot"})

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []any{"close-up on face", "pan left"}, decodeBody(t, rec)["suggestions"])
	})
}

func TestGenerateStyle(t *testing.T) {
	t.Run("スタイル未指定は400になること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/generate-style", map[string]string{})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "style is required", decodeBody(t, rec)["detail"])
		require.Zero(t, env.calls.Load())
	})

	t.Run("上流の非成功応答はステータスとメッセージが透過されること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
		})

		rec := env.do(t, http.MethodPost, "/api/generate-style",
			map[string]string{"style": "Noir"})

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "quota exceeded", decodeBody(t, rec)["detail"])
	})

	t.Run("インライン画像がbase64とデータURLで返ること", func(t *testing.T) {
		b64 := base64.StdEncoding.EncodeToString([]byte("fake-png"))
		env := newTestEnv(t, "test-key", inlineUpstream("image/png", b64))

		rec := env.do(t, http.MethodPost, "/api/generate-style",
			map[string]string{"style": "Noir"})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, b64, body["base64"])
		require.Equal(t, "image/png", body["mimeType"])
		require.Equal(t, "data:image/png;base64,"+b64, body["dataUrl"])
	})
}

func TestAnalyzeStyle(t *testing.T) {
	t.Run("画像なしは400になること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/analyze-style", map[string]string{})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "image_base64 is required", decodeBody(t, rec)["detail"])
	})

	t.Run("上流障害時は200と固定プレースホルダへフォールバックすること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/analyze-style",
			map[string]string{"image_base64": "aGVsbG8=", "mime_type": "image/png"})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "Custom Style", body["style_name"])
		require.Equal(t, "Custom uploaded style", body["style_description"])
	})

	t.Run("上流の解析JSONがそのまま返ること", func(t *testing.T) {
		env := newTestEnv(t, "test-key",
			textUpstream(`{"style_name":"Ukiyo-e","style_description":"woodblock print"}`))

		rec := env.do(t, http.MethodPost, "/api/analyze-style",
			map[string]string{"image_base64": "aGVsbG8=", "mime_type": "image/png"})

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Ukiyo-e", decodeBody(t, rec)["style_name"])
	})
}

func TestGenerateImage(t *testing.T) {
	t.Run("プロンプトなしは400になること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/generate-image",
			map[string]string{"prompt": "   "})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "prompt is required", decodeBody(t, rec)["detail"])
		require.Zero(t, env.calls.Load())
	})

	t.Run("生成画像が16:9にクロップされJPEGデータURLで返ること", func(t *testing.T) {
		srcPNG := encodePNG(t, 320, 320)
		env := newTestEnv(t, "test-key",
			inlineUpstream("image/png", base64.StdEncoding.EncodeToString(srcPNG)))

		rec := env.do(t, http.MethodPost, "/api/generate-image", map[string]any{
			"prompt":         "a ship at dawn",
			"projectStyleId": "proj-1",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		imageURL, ok := decodeBody(t, rec)["imageUrl"].(string)
		require.True(t, ok)
		require.True(t, strings.HasPrefix(imageURL, "data:image/jpeg;base64,"))

		cropped, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(imageURL, "data:image/jpeg;base64,"))
		require.NoError(t, err)
		cfgImg, format, err := image.DecodeConfig(bytes.NewReader(cropped))
		require.NoError(t, err)
		require.Equal(t, "jpeg", format)
		require.Equal(t, 320, cfgImg.Width)
		require.Equal(t, 180, cfgImg.Height)

		// セッションに生成履歴が積まれること
		sess, ok := env.sessions.Get("proj-1")
		require.True(t, ok)
		require.Len(t, sess.Snapshot().GeneratedImages, 1)
	})

	t.Run("画像パートがない応答は500になること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", textUpstream("no image here"))

		rec := env.do(t, http.MethodPost, "/api/generate-image",
			map[string]string{"prompt": "a ship"})

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "No image data received from API", decodeBody(t, rec)["detail"])
	})
}

func TestStyleSessionEndpoints(t *testing.T) {
	env := newTestEnv(t, "test-key", nil)

	rec := env.do(t, http.MethodPost, "/api/create-style-session",
		map[string]string{"projectId": "proj-9", "baseStyle": "Noir"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "created", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/api/style-session/proj-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Noir", decodeBody(t, rec)["base_style"])

	rec = env.do(t, http.MethodDelete, "/api/style-session/proj-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cleared", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/api/style-session/proj-9", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Style session not found", decodeBody(t, rec)["detail"])

	t.Run("プロジェクトIDなしの作成は400になること", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/create-style-session", map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Project ID required", decodeBody(t, rec)["detail"])
	})
}

func TestGenerateStoryboard(t *testing.T) {
	t.Run("台本なしは400になること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/generate-storyboard", map[string]string{})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "script is required", decodeBody(t, rec)["detail"])
	})

	t.Run("テンプレート種別指定で対応テンプレートが使われること", func(t *testing.T) {
		env := newTestEnv(t, "test-key",
			textUpstream(`[{"prompt":"wide shot","audio":"hello"}]`))

		rec := env.do(t, http.MethodPost, "/api/generate-storyboard", map[string]any{
			"script":       "a short story",
			"templateType": "cinematic",
			"panelCount":   4,
		})

		require.Equal(t, http.StatusOK, rec.Code)
		panels, ok := decodeBody(t, rec)["panels"].([]any)
		require.True(t, ok)
		require.Len(t, panels, 1)

		var upstream gemini.Request
		require.NoError(t, json.Unmarshal(*env.lastBody, &upstream))
		require.Contains(t, upstream.Contents[0].Parts[0].Text, "4 panels for: a short story")
	})

	t.Run("未知のテンプレート種別は500になること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/generate-storyboard", map[string]any{
			"script":       "a short story",
			"templateType": "nonexistent",
		})

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Zero(t, env.calls.Load())
	})
}

func TestAnalyzeStory(t *testing.T) {
	t.Run("パネル2枚では400になり上流は呼ばれないこと", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/analyze-story", map[string]any{
			"panels": []map[string]any{
				{"prompt": "shot 1", "audio": "line 1"},
				{"prompt": "shot 2", "audio": "line 2"},
			},
		})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Need at least 3 panels to perform story analysis", decodeBody(t, rec)["detail"])
		require.Zero(t, env.calls.Load())
	})

	t.Run("3枚以上で台本が組み立てられ分析テキストが返ること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", textUpstream("solid structure"))

		rec := env.do(t, http.MethodPost, "/api/analyze-story", map[string]any{
			"panels": []map[string]any{
				{"prompt": "shot 1", "audio": "line 1"},
				{"prompt": "shot 2"},
				{"audio": "line 3"},
			},
		})

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "solid structure", decodeBody(t, rec)["analysis"])

		var upstream gemini.Request
		require.NoError(t, json.Unmarshal(*env.lastBody, &upstream))
		script := upstream.Contents[0].Parts[0].Text
		require.Contains(t, script, "Panel 1:\nPROMPT: shot 1\nAUDIO: line 1")
		require.Contains(t, script, "Panel 2:\nPROMPT: shot 2\nAUDIO: N/A")
		require.Contains(t, script, "Panel 3:\nPROMPT: N/A\nAUDIO: line 3")
	})
}

func TestRefineScript(t *testing.T) {
	t.Run("空白のみの説明文は400になること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/refine-script",
			map[string]string{"natural_language": "  \n "})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Natural language description is required", decodeBody(t, rec)["detail"])
		require.Zero(t, env.calls.Load())
	})

	t.Run("整形済み台本が返ること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", textUpstream("INT. ROOM - DAY"))

		rec := env.do(t, http.MethodPost, "/api/refine-script",
			map[string]string{"natural_language": "two people argue in a room"})

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "INT. ROOM - DAY", decodeBody(t, rec)["refined_script"])
	})
}

func TestGenerateAudio(t *testing.T) {
	t.Run("空白のみのテキストは上流を呼ばずに400になること", func(t *testing.T) {
		env := newTestEnv(t, "test-key", nil)

		rec := env.do(t, http.MethodPost, "/api/generate-audio",
			map[string]string{"text": "   "})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Text is required for audio generation", decodeBody(t, rec)["detail"])
		require.Zero(t, env.calls.Load())
	})

	t.Run("PCMがWAVに包まれて返ること", func(t *testing.T) {
		pcm := bytes.Repeat([]byte{0x01, 0x02}, 512)
		env := newTestEnv(t, "test-key",
			inlineUpstream("audio/L16;codec=pcm;rate=24000", base64.StdEncoding.EncodeToString(pcm)))

		rec := env.do(t, http.MethodPost, "/api/generate-audio",
			map[string]string{"text": "hello world"})

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
		require.Equal(t, "attachment; filename=audio.wav", rec.Header().Get("Content-Disposition"))

		wav := rec.Body.Bytes()
		require.Len(t, wav, 44+len(pcm))
		require.Equal(t, "RIFF", string(wav[0:4]))
		require.Equal(t, "WAVE", string(wav[8:12]))
		require.Equal(t, pcm, wav[44:])
	})

	t.Run("音声以外のMIMEタイプは500になること", func(t *testing.T) {
		env := newTestEnv(t, "test-key",
			inlineUpstream("image/png", base64.StdEncoding.EncodeToString([]byte("nope"))))

		rec := env.do(t, http.MethodPost, "/api/generate-audio",
			map[string]string{"text": "hello"})

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "Invalid audio data received", decodeBody(t, rec)["detail"])
	})
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, "test-key", nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/generate-image", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
