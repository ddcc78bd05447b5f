package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

const (
	// APIKeyLength is the exact length of a Poe API key.
	APIKeyLength = 43

	// DefaultBaseURL is the OpenAI-compatible chat completions
	// endpoint of the default provider.
	DefaultBaseURL = "https://api.poe.com/v1"

	ProviderPoe = "poe"
	ProviderArk = "ark"

	configFileName  = "config.json"
	sessionFileName = "session.json"
)

// Config aggregates everything the client needs for one run.
type Config struct {
	Dir string
	AI  AIConfig
}

// AIConfig describes the remote model configuration.
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stream      bool
}

// credentials is the persisted config file shape, unchanged from the
// original client so existing ~/.config/edi/config.json files keep
// working.
type credentials struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// Load reads the config file if present and applies environment
// overrides on top.
func Load() (*Config, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}

	creds, err := loadCredentials(filepath.Join(dir, configFileName))
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(creds)
	if err != nil {
		return nil, err
	}

	return &Config{Dir: dir, AI: ai}, nil
}

// Complete reports whether enough is configured to talk to the
// provider without the first-run setup.
func (c *Config) Complete() bool {
	if c.AI.Provider == ProviderArk {
		return c.AI.Model != "" && (c.AI.APIKey != "" || (c.AI.AccessKey != "" && c.AI.SecretKey != ""))
	}
	return c.AI.APIKey != "" && c.AI.Model != ""
}

// SessionPath returns the location of the persisted session file.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Dir, sessionFileName)
}

// SaveCredentials persists the API key and selected model in the
// original config.json format.
func (c *Config) SaveCredentials(apiKey, modelName string) error {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("create config dir %s: %w", c.Dir, err)
	}

	data, err := json.Marshal(credentials{APIKey: apiKey, Model: modelName})
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.Dir, configFileName), data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	c.AI.APIKey = apiKey
	c.AI.Model = modelName
	return nil
}

// ValidateAPIKey rejects keys of the wrong length before they ever
// reach the provider.
func ValidateAPIKey(key string) error {
	if len(key) != APIKeyLength {
		return fmt.Errorf("invalid API key length %d, expected %d characters", len(key), APIKeyLength)
	}
	return nil
}

// NewChatModel constructs the configured provider's chat model.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	switch c.Provider {
	case ProviderArk:
		return c.newArkChatModel(ctx)
	case ProviderPoe, "":
		return c.newPoeChatModel(ctx)
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

func (c AIConfig) newPoeChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.APIKey == "" || c.Model == "" {
		return nil, errors.New("missing API key or model, run the interactive setup or set EDI_API_KEY and EDI_MODEL")
	}

	cfg := &openai.ChatModelConfig{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: float64PtrTo32(c.Temperature),
		TopP:        float64PtrTo32(c.TopP),
	}
	return openai.NewChatModel(ctx, cfg)
}

func (c AIConfig) newArkChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Model == "" || (c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "")) {
		return nil, errors.New("ark provider needs EDI_MODEL plus ARK_API_KEY or an AK/SK pair")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: float64PtrTo32(c.Temperature),
		TopP:        float64PtrTo32(c.TopP),
	}
	return ark.NewChatModel(ctx, cfg)
}

func configDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("EDI_CONFIG_DIR")); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "edi"), nil
}

func loadCredentials(path string) (credentials, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return credentials{}, nil
	}
	if err != nil {
		return credentials{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return credentials{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return creds, nil
}

func loadAIConfig(creds credentials) (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("EDI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("EDI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("EDI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("EDI_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	provider := strings.ToLower(getEnvOrDefault("EDI_PROVIDER", ProviderPoe))

	baseURL := strings.TrimSpace(os.Getenv("EDI_BASE_URL"))
	if baseURL == "" && provider != ProviderArk {
		baseURL = DefaultBaseURL
	}

	apiKey := strings.TrimSpace(os.Getenv("EDI_API_KEY"))
	if apiKey == "" && provider == ProviderArk {
		apiKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
	}
	if apiKey == "" {
		apiKey = creds.APIKey
	}

	modelName := strings.TrimSpace(os.Getenv("EDI_MODEL"))
	if modelName == "" {
		modelName = creds.Model
	}

	return AIConfig{
		Provider:    provider,
		APIKey:      apiKey,
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       modelName,
		BaseURL:     baseURL,
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}, nil
}

func float64PtrTo32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	val := float32(*v)
	return &val
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
