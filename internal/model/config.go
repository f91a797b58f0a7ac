package model

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration (estig.yaml).
type Config struct {
	Version int `yaml:"version"` // fixed 0 for now

	// Workbook is the xlsx file holding one sheet per profile.
	Workbook string `yaml:"workbook,omitempty"`
	// ScanDir is walked recursively for .cklb exports.
	ScanDir string `yaml:"scan_dir,omitempty"`
	// XMLDir receives the per-profile answer-key documents.
	XMLDir string `yaml:"xml_dir,omitempty"`
	// Comment written into ValidTrueComment for new rows; empty means
	// the fixed default.
	Comment string `yaml:"comment,omitempty"`
	// History is an optional sqlite file recording merge runs.
	History string `yaml:"history,omitempty"`

	// Profiles is the allow-list of sheet names created by init.
	Profiles []string `yaml:"profiles,omitempty"`

	Report  Report  `yaml:"report,omitempty"`
	GenAI   GenAI   `yaml:"genai,omitempty"`
	Verbose bool    `yaml:"verbose,omitempty"`
}

// Report settings for the read-only aggregation pipeline.
type Report struct {
	// Limit caps concurrent checklist parses. Zero means a small default.
	Limit int `yaml:"limit,omitempty"`
}

// GenAI configures the remote text-generation capability.
type GenAI struct {
	URL            string `yaml:"url,omitempty"`
	Model          string `yaml:"model,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Comment: DefaultComment,
		Report:  Report{Limit: 4},
		GenAI: GenAI{
			URL:            "http://localhost:11434",
			Model:          "codellama:13b",
			TimeoutSeconds: 120,
		},
	}
}

// LoadConfig decodes YAML from r. Unknown fields are rejected so a typo in
// the config file surfaces instead of being silently ignored.
func LoadConfig(r io.Reader) (Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var out Config
	if err := dec.Decode(&out); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if out.Version != 0 {
		return Config{}, fmt.Errorf("unsupported config version %d", out.Version)
	}
	return out, nil
}
