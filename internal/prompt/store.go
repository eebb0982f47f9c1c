// Package prompt は、設定ディレクトリから読み込んだプロンプトテンプレートの
// 管理と描画（変数展開）を担当します。
package prompt

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// VariableDef はテンプレートが宣言する変数のメタ情報です。
type VariableDef struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
	Default  any    `yaml:"default"`
}

// Definition は1つのプロンプトテンプレート定義です。
// 名前が明示されていない場合はファイル名（拡張子抜き）が採用されます。
type Definition struct {
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description"`
	Template       string         `yaml:"template"`
	SystemPrompt   string         `yaml:"system_prompt"`
	ResponseSchema map[string]any `yaml:"response_schema"`
	Variables      []VariableDef  `yaml:"variables"`
}

// Store はテンプレート名と定義の対応表を管理します。
// 起動時に一度だけ読み込まれ、以降は読み取り専用で使われるため、
// 並行アクセスにロックは不要です。
type Store struct {
	templates map[string]*Definition
}

// NewStore は空の Store を生成します。
func NewStore() *Store {
	return &Store{templates: make(map[string]*Definition)}
}

// LoadDir は指定ディレクトリ直下の *.yaml ファイルをすべて読み込みます。
// 個別ファイルの解析失敗はログに残してスキップし、残りの読み込みは継続するのだ。
// 同名のテンプレートは後から読んだものが上書きします。
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Prompts directory does not exist", "dir", dir)
			return nil
		}
		return fmt.Errorf("プロンプトディレクトリ '%s' を読み込めませんでした: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Error loading template", "file", path, "error", err)
			continue
		}

		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			slog.Warn("Error loading template", "file", path, "error", err)
			continue
		}

		if def.Name == "" {
			def.Name = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		s.templates[def.Name] = &def
		slog.Info("Loaded template", "name", def.Name)
	}

	return nil
}

// Get は名前でテンプレート定義を引きます。
func (s *Store) Get(name string) (*Definition, bool) {
	def, ok := s.templates[name]
	return def, ok
}

// List は登録済みテンプレート名の一覧をソートして返します。
func (s *Store) List() []string {
	names := slices.Collect(maps.Keys(s.templates))
	slices.Sort(names)
	return names
}

// VariableDefinitions はテンプレートの変数宣言を返します。
// 未登録の名前には nil を返します。
func (s *Store) VariableDefinitions(name string) []VariableDef {
	def, ok := s.templates[name]
	if !ok {
		return nil
	}
	return def.Variables
}
