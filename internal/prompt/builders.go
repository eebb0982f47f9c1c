package prompt

// 各機能が使用する固定テンプレート名です。
const (
	imageTemplateName      = "image_generation_simple"
	templateNameSuffix     = "_template"
	DefaultStyle           = "Cinematic Realism"
	DefaultStoryboardPanel = 8
)

// ImagePrompt は画像生成用の変数マップを組み立てる薄いビルダーです。
// I/Oは行わず、失敗はそのまま呼び出し元へ伝搬します。
type ImagePrompt struct {
	store *Store
}

// NewImagePrompt は ImagePrompt を生成します。
func NewImagePrompt(store *Store) *ImagePrompt {
	return &ImagePrompt{store: store}
}

// Build は画像生成プロンプトを描画します。
func (p *ImagePrompt) Build(prompt, style string, usePreviousContext bool) (string, error) {
	vars := Variables{
		"prompt":               prompt,
		"style":                style,
		"use_previous_context": usePreviousContext,
	}
	return p.store.Render(imageTemplateName, vars)
}

// StoryboardPrompt はストーリーボードテンプレート用のビルダーです。
// テンプレート名は "{templateType}_template" として導出されます。
type StoryboardPrompt struct {
	store *Store
}

// NewStoryboardPrompt は StoryboardPrompt を生成します。
func NewStoryboardPrompt(store *Store) *StoryboardPrompt {
	return &StoryboardPrompt{store: store}
}

// Build はシステムプロンプト・ユーザープロンプト・応答スキーマの三つ組を返します。
func (p *StoryboardPrompt) Build(templateType, context string, panelCount int) (systemPrompt, userPrompt string, schema map[string]any, err error) {
	name := templateType + templateNameSuffix
	vars := Variables{
		"context":     context,
		"panel_count": panelCount,
	}

	systemPrompt, err = p.store.RenderSystemPrompt(name, vars)
	if err != nil {
		return "", "", nil, err
	}
	userPrompt, err = p.store.Render(name, vars)
	if err != nil {
		return "", "", nil, err
	}
	return systemPrompt, userPrompt, p.store.ResponseSchema(name), nil
}
