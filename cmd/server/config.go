package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/handlers"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/services"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/stream"
	"gopkg.in/yaml.v3"
)

type backendConfig interface {
	backend(systemPrompt string, logger *slog.Logger) (handlers.Backend, error)
}

// BaseBackendConfig contains the common fields for all backend configurations.
type BaseBackendConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port            string               `yaml:"port"`
	SystemPrompt    string               `yaml:"systemPrompt"`
	AssistantName   string               `yaml:"assistantName"`
	AssistantLabels []string             `yaml:"assistantLabels"`
	ExportPath      string               `yaml:"exportPath"`
	Resume          bool                 `yaml:"resume"`
	Log             logConfig            `yaml:"log"`
	Backend         backendConfig        `yaml:"backend"`
	Realtime        realtimeConfig       `yaml:"realtime"`
	Kafka           services.KafkaConfig `yaml:"kafka"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type realtimeConfig struct {
	TokenURL string `yaml:"tokenURL"`
	URL      string `yaml:"url"`
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
}

type hopeAIConfig struct {
	BaseBackendConfig `yaml:",inline"`
	BaseURL           string `yaml:"baseURL"`
	MaxEventSize      int    `yaml:"maxEventSize"`
}

type openAIConfig struct {
	BaseBackendConfig `yaml:",inline"`
	APIKey            string                 `yaml:"apiKey"`
	BaseURL           string                 `yaml:"baseURL"`
	Parameters        services.LLMParameters `yaml:"parameters"`
}

type ollamaConfig struct {
	BaseBackendConfig `yaml:",inline"`
	Host              string `yaml:"host"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port            string               `yaml:"port"`
		SystemPrompt    string               `yaml:"systemPrompt"`
		AssistantName   string               `yaml:"assistantName"`
		AssistantLabels []string             `yaml:"assistantLabels"`
		ExportPath      string               `yaml:"exportPath"`
		Resume          bool                 `yaml:"resume"`
		Log             logConfig            `yaml:"log"`
		Backend         map[string]any       `yaml:"backend"`
		Realtime        realtimeConfig       `yaml:"realtime"`
		Kafka           services.KafkaConfig `yaml:"kafka"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.SystemPrompt = rawConfig.SystemPrompt
	c.AssistantName = rawConfig.AssistantName
	c.AssistantLabels = rawConfig.AssistantLabels
	c.ExportPath = rawConfig.ExportPath
	c.Resume = rawConfig.Resume
	c.Log = rawConfig.Log
	c.Realtime = rawConfig.Realtime
	c.Kafka = rawConfig.Kafka

	provider, ok := rawConfig.Backend["provider"].(string)
	if !ok {
		return fmt.Errorf("backend provider is required")
	}

	backendRawYAML, err := yaml.Marshal(rawConfig.Backend)
	if err != nil {
		return err
	}

	var backend backendConfig
	switch provider {
	case "hopeai":
		backend = &hopeAIConfig{}
	case "openai":
		backend = &openAIConfig{}
	case "ollama":
		backend = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown backend provider: %s", provider)
	}

	if err := yaml.Unmarshal(backendRawYAML, backend); err != nil {
		return err
	}

	c.Backend = backend

	return nil
}

// assistant returns the display name and reply labels to configure, or false when neither is set.
// Labels given without a name keep the default name.
func (c config) assistant() (string, []string, bool) {
	if c.AssistantName == "" && len(c.AssistantLabels) == 0 {
		return "", nil, false
	}
	name := c.AssistantName
	if name == "" {
		name = models.DefaultAssistantName
	}
	return name, c.AssistantLabels, true
}

func (c config) logger() *slog.Logger {
	level := slog.LevelInfo
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func (h hopeAIConfig) backend(_ string, logger *slog.Logger) (handlers.Backend, error) {
	baseURL := h.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("HOPEAI_BASE_URL")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	var cfg *stream.Config
	if h.MaxEventSize > 0 {
		cfg = &stream.Config{MaxEventSize: h.MaxEventSize}
	}
	return services.NewHopeAI(baseURL, cfg, logger), nil
}

func (o openAIConfig) backend(systemPrompt string, logger *slog.Logger) (handlers.Backend, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt, o.Parameters, logger), nil
}

func (o ollamaConfig) backend(systemPrompt string, _ *slog.Logger) (handlers.Backend, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, systemPrompt)
}
