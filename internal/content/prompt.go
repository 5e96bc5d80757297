package content

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed persona.tmpl
var defaultPersona string

// PromptConfig is the optional prompt.yaml next to the content files.
//
//	owner: Tomer
//	notes:
//	  - Refer to Tomer as "she" or "her".
//	template: |
//	  ... full replacement, may use {{.Owner}}, {{.Context}} and {{.Notes}}
type PromptConfig struct {
	Owner    string   `yaml:"owner"`
	Notes    []string `yaml:"notes"`
	Template string   `yaml:"template"`

	tmpl *template.Template
}

// LoadPromptConfig reads path when set and falls back to the built-in persona.
// owner is used when the file does not name one.
func LoadPromptConfig(path, owner string) (*PromptConfig, error) {
	cfg := &PromptConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse prompt yaml: %w", err)
		}
	}

	if strings.TrimSpace(cfg.Owner) == "" {
		cfg.Owner = owner
	}
	if strings.TrimSpace(cfg.Template) == "" {
		cfg.Template = defaultPersona
	}

	tmpl, err := template.New("persona").Option("missingkey=error").Parse(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	cfg.tmpl = tmpl

	return cfg, nil
}

// Render produces the system prompt for the given context document.
func (p *PromptConfig) Render(context string) (string, error) {
	var b strings.Builder
	err := p.tmpl.Execute(&b, struct {
		Owner   string
		Context string
		Notes   []string
	}{
		Owner:   p.Owner,
		Context: strings.TrimSpace(context),
		Notes:   p.Notes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}
