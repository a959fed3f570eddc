package worker

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// promptConfig is the embedded prompt catalogue, parsed once at startup.
type promptConfig struct {
	MaterialEnhance struct {
		System       string            `yaml:"system"`
		Styles       map[string]string `yaml:"styles"`
		DefaultStyle string            `yaml:"default_style"`
	} `yaml:"material_enhance"`
	TemplateRender struct {
		System string `yaml:"system"`
	} `yaml:"template_render"`
}

func loadPrompts() (*promptConfig, error) {
	var cfg promptConfig
	if err := yaml.Unmarshal(promptsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse embedded prompts: %w", err)
	}
	if cfg.MaterialEnhance.System == "" || cfg.TemplateRender.System == "" {
		return nil, fmt.Errorf("embedded prompts are incomplete")
	}
	return &cfg, nil
}
