package main

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Embedded defaults. Each can be overridden with a file path flag.
//
//go:embed config/wordpress-article-prompt.md
var defaultArticlePrompt string

//go:embed config/chart-generation-prompt.md
var defaultChartPrompt string

//go:embed config/schema-markup-prompt.md
var defaultSchemaPrompt string

//go:embed config/settings.yaml
var defaultSettingsYAML string

// ConfigOverrides holds file path overrides for the embedded configuration.
type ConfigOverrides struct {
	ArticlePromptPath *string
	ChartPromptPath   *string
	SchemaPromptPath  *string
	SettingsPath      *string
}

// PhaseSettings tunes one generation phase.
type PhaseSettings struct {
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Settings is the YAML configuration structure (config/settings.yaml).
type Settings struct {
	InputDirectory  string `yaml:"input_directory"`
	OutputDirectory string `yaml:"output_directory"`
	RecordDirectory string `yaml:"record_directory"`
	AuthorName      string `yaml:"author_name"`
	DefaultStatus   string `yaml:"default_status"`

	DefaultCategories []string `yaml:"default_categories"`
	DefaultTags       []string `yaml:"default_tags"`

	// Seconds to wait between posts; blunt backpressure for the
	// rate-limited WordPress API.
	PostIntervalSeconds int `yaml:"post_interval_seconds"`

	OpenAI struct {
		Model   string        `yaml:"model"`
		Content PhaseSettings `yaml:"content"`
		Charts  PhaseSettings `yaml:"charts"`
		Schema  PhaseSettings `yaml:"schema"`
	} `yaml:"openai"`
}

// Config holds credentials from the environment plus the YAML settings.
type Config struct {
	WordPressAPIURL      string
	WordPressUser        string
	WordPressAppPassword string
	SiteURL              string
	OpenAIKey            string
	DryRun               bool

	Settings  *Settings
	Overrides *ConfigOverrides
}

// LoadConfig reads .env (when present), validates required environment
// variables and loads settings. Missing credentials are a fatal startup
// error: credentials never live in source.
func LoadConfig(overrides *ConfigOverrides) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		WordPressAPIURL:      os.Getenv("WORDPRESS_API_URL"),
		WordPressUser:        os.Getenv("WORDPRESS_USERNAME"),
		WordPressAppPassword: os.Getenv("WORDPRESS_APP_PASSWORD"),
		SiteURL:              os.Getenv("SITE_URL"),
		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		DryRun:               os.Getenv("DRY_RUN") == "1" || strings.EqualFold(os.Getenv("DRY_RUN"), "true"),
		Overrides:            overrides,
	}

	var missing []string
	if cfg.WordPressAPIURL == "" {
		missing = append(missing, "WORDPRESS_API_URL")
	}
	if cfg.WordPressUser == "" {
		missing = append(missing, "WORDPRESS_USERNAME")
	}
	if cfg.WordPressAppPassword == "" {
		missing = append(missing, "WORDPRESS_APP_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.SiteURL == "" {
		cfg.SiteURL = strings.TrimSuffix(cfg.WordPressAPIURL, "/wp-json/wp/v2")
	}

	settings, err := loadSettings(overrides)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	cfg.Settings = settings

	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		SetDebugMode(true)
	}

	return cfg, nil
}

// PromptTemplates returns the prompt templates, preferring override files
// over the embedded defaults. An unreadable override file is fatal: prompts
// are load-bearing for output quality.
func (c *Config) PromptTemplates() (PromptTemplates, error) {
	t := PromptTemplates{
		Article: defaultArticlePrompt,
		Chart:   defaultChartPrompt,
		Schema:  defaultSchemaPrompt,
	}
	if c.Overrides == nil {
		return t, nil
	}

	read := func(path *string, dst *string) error {
		if path == nil {
			return nil
		}
		data, err := os.ReadFile(*path)
		if err != nil {
			return fmt.Errorf("reading prompt override %s: %w", *path, err)
		}
		*dst = string(data)
		return nil
	}
	if err := read(c.Overrides.ArticlePromptPath, &t.Article); err != nil {
		return PromptTemplates{}, err
	}
	if err := read(c.Overrides.ChartPromptPath, &t.Chart); err != nil {
		return PromptTemplates{}, err
	}
	if err := read(c.Overrides.SchemaPromptPath, &t.Schema); err != nil {
		return PromptTemplates{}, err
	}
	return t, nil
}

// loadSettings parses the embedded settings.yaml, or an explicit override
// file which must then exist.
func loadSettings(overrides *ConfigOverrides) (*Settings, error) {
	data := []byte(defaultSettingsYAML)
	if overrides != nil && overrides.SettingsPath != nil {
		fileData, err := os.ReadFile(*overrides.SettingsPath)
		if err != nil {
			return nil, fmt.Errorf("settings file missing: %s: %w", *overrides.SettingsPath, err)
		}
		data = fileData
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	if settings.DefaultStatus == "" {
		settings.DefaultStatus = "draft"
	}
	if settings.PostIntervalSeconds <= 0 {
		settings.PostIntervalSeconds = 2
	}
	return &settings, nil
}

var debugEnabled bool

// SetDebugMode enables or disables debug logging.
func SetDebugMode(enabled bool) {
	debugEnabled = enabled
}

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[DEBUG] "+format, args...)
	}
}
