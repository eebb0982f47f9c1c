package prompt

import (
	"errors"
	"fmt"
	"regexp"
)

// テンプレート層のエラー種別です。errors.Is で判別できます。
var (
	ErrTemplateNotFound        = errors.New("template not found")
	ErrEmptyTemplate           = errors.New("template has no content")
	ErrMissingRequiredVariable = errors.New("required variable not provided")
)

// Variables は1回の描画に与える変数名と値の対応です。
// Render はデフォルト値の補完でこのマップを直接書き換えます。
// 補完結果が呼び出し元から見えることは仕様の一部なのだ。
type Variables map[string]any

// Render はテンプレートを変数で展開した本文を返します。
// 展開は素朴な文字列置換で、テンプレート中の解決できない参照は
// エラーにせずそのまま残します。部分テンプレートを多段で埋める
// 呼び出し元がこの寛容なモードに依存しているため、変更してはいけません。
func (s *Store) Render(name string, vars Variables) (string, error) {
	def, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: '%s'", ErrTemplateNotFound, name)
	}
	if def.Template == "" {
		return "", fmt.Errorf("%w: '%s'", ErrEmptyTemplate, name)
	}
	if err := applyVariableDefs(def, vars); err != nil {
		return "", err
	}
	return substitute(def.Template, vars), nil
}

// RenderSystemPrompt はテンプレートのシステムプロンプトを展開します。
// システムプロンプトが定義されていない場合はエラーではなく空文字を返します。
func (s *Store) RenderSystemPrompt(name string, vars Variables) (string, error) {
	def, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: '%s'", ErrTemplateNotFound, name)
	}
	if def.SystemPrompt == "" {
		return "", nil
	}
	if err := applyVariableDefs(def, vars); err != nil {
		return "", err
	}
	return substitute(def.SystemPrompt, vars), nil
}

// ResponseSchema はテンプレートに付随する応答スキーマを返します。
// 未登録・未定義の場合は nil です（描画は行いません）。
func (s *Store) ResponseSchema(name string) map[string]any {
	def, ok := s.templates[name]
	if !ok {
		return nil
	}
	return def.ResponseSchema
}

// applyVariableDefs は変数宣言に基づいてマップを検証・補完します。
// 宣言された変数が未指定のとき、デフォルトがあればマップに書き込み、
// なければ required の場合にエラーを返します。
func applyVariableDefs(def *Definition, vars Variables) error {
	for _, vd := range def.Variables {
		if _, ok := vars[vd.Name]; ok {
			continue
		}
		if vd.Default != nil {
			vars[vd.Name] = vd.Default
			continue
		}
		if vd.Required {
			return fmt.Errorf("%w: '%s' (template '%s')", ErrMissingRequiredVariable, vd.Name, def.Name)
		}
	}
	return nil
}

// substitute は {{ name }} 形式の参照を値の文字列表現で置き換えます。
// マップに存在しない参照には触れません。
func substitute(text string, vars Variables) string {
	for name, value := range vars {
		ref := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(name) + `\s*\}\}`)
		text = ref.ReplaceAllLiteralString(text, fmt.Sprintf("%v", value))
	}
	return text
}
