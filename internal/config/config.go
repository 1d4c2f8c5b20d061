package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds all configuration for the game generator service
type Config struct {
	// Server settings
	Port int

	// Logging
	LogLevel  string
	LogFormat string

	// Completion provider selection
	Provider string // "openai" or "gemini"

	// OpenAI settings
	OpenAIAPIKey  string
	OpenAIBaseURL string // Optional: custom API endpoint
	OpenAIModel   string

	// Gemini settings
	GeminiAPIKey string
	GeminiModel  string

	// Generated files
	OutputDir string

	// Completion call budget; 0 means unlimited
	DailyGenerationLimit     int
	GenerationAlertThreshold float64

	// Codemagic settings
	CodemagicAPIURL   string
	CodemagicAPIToken string
	CodemagicAppID    string
	BuildPollInterval time.Duration
	BuildMaxWait      time.Duration
	BuildRecipients   []string
	Signing           Signing

	// Repository publishing (optional)
	GitHubToken      string
	GitHubAppID      string
	GitHubPrivateKey string
	GitHubRepo       string // owner/repo
	GitHubBranch     string

	// Artifact storage
	ArtifactDir      string
	ArtifactS3Bucket string
	AWSRegion        string
	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string

	// Dispatcher settings
	DispatcherWorkers           int
	DispatcherQueueSize         int
	DispatcherMaxAttempts       int
	DispatcherRetryInitial      time.Duration
	DispatcherRetryMax          time.Duration
	DispatcherBackoffMultiplier float64
	DispatcherTaskTimeout       time.Duration
}

// Signing carries platform code-signing material referenced by build configs.
type Signing struct {
	AndroidKeystorePath     string
	AndroidKeystorePassword string
	AndroidKeyAlias         string
	AndroidKeyPassword      string

	IOSCertificatePath     string
	IOSCertificatePassword string
	IOSProvisioningProfile string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                        getEnvInt("PORT", 3000),
		LogLevel:                    getEnv("LOG_LEVEL", "info"),
		LogFormat:                   getEnv("LOG_FORMAT", "json"),
		Provider:                    getEnv("PROVIDER", "openai"),
		OpenAIAPIKey:                os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:               os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:                 getEnv("OPENAI_MODEL", "gpt-4"),
		GeminiAPIKey:                os.Getenv("GEMINI_API_KEY"),
		GeminiModel:                 getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OutputDir:                   getEnv("OUTPUT_DIR", "generated"),
		DailyGenerationLimit:        getEnvInt("DAILY_GENERATION_LIMIT", 0),
		GenerationAlertThreshold:    getEnvFloat("GENERATION_ALERT_THRESHOLD", 0.8),
		CodemagicAPIURL:             getEnv("CODEMAGIC_API_URL", "https://api.codemagic.io/builds"),
		CodemagicAPIToken:           os.Getenv("CODEMAGIC_API_TOKEN"),
		CodemagicAppID:              os.Getenv("CODEMAGIC_APP_ID"),
		BuildPollInterval:           getEnvSeconds("BUILD_POLL_INTERVAL_SECONDS", 30),
		BuildMaxWait:                getEnvSeconds("BUILD_MAX_WAIT_SECONDS", 1800),
		BuildRecipients:             getEnvList("BUILD_NOTIFY_EMAILS", []string{"build@example.com"}),
		Signing:                     loadSigning(),
		GitHubToken:                 os.Getenv("GITHUB_TOKEN"),
		GitHubAppID:                 os.Getenv("GITHUB_APP_ID"),
		GitHubPrivateKey:            normalizePrivateKey(os.Getenv("GITHUB_PRIVATE_KEY")),
		GitHubRepo:                  os.Getenv("GITHUB_REPO"),
		GitHubBranch:                getEnv("GITHUB_BRANCH", "main"),
		ArtifactDir:                 getEnv("ARTIFACT_DIR", "artifacts"),
		ArtifactS3Bucket:            os.Getenv("ARTIFACT_S3_BUCKET"),
		AWSRegion:                   getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:                  os.Getenv("S3_ENDPOINT"),
		S3AccessKey:                 os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:                 os.Getenv("S3_SECRET_KEY"),
		DispatcherWorkers:           getEnvInt("DISPATCHER_WORKERS", 2),
		DispatcherQueueSize:         getEnvInt("DISPATCHER_QUEUE_SIZE", 16),
		DispatcherMaxAttempts:       getEnvInt("DISPATCHER_MAX_ATTEMPTS", 1),
		DispatcherRetryInitial:      getEnvSeconds("DISPATCHER_RETRY_SECONDS", 15),
		DispatcherRetryMax:          getEnvSeconds("DISPATCHER_RETRY_MAX_SECONDS", 300),
		DispatcherBackoffMultiplier: getEnvFloat("DISPATCHER_BACKOFF_MULTIPLIER", 2.0),
		DispatcherTaskTimeout:       getEnvSeconds("DISPATCHER_TASK_TIMEOUT_SECONDS", 0),
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadSigning() Signing {
	return Signing{
		AndroidKeystorePath:     os.Getenv("ANDROID_KEYSTORE_PATH"),
		AndroidKeystorePassword: os.Getenv("ANDROID_KEYSTORE_PASSWORD"),
		AndroidKeyAlias:         os.Getenv("ANDROID_KEY_ALIAS"),
		AndroidKeyPassword:      os.Getenv("ANDROID_KEY_PASSWORD"),
		IOSCertificatePath:      os.Getenv("IOS_CERTIFICATE_PATH"),
		IOSCertificatePassword:  os.Getenv("IOS_CERTIFICATE_PASSWORD"),
		IOSProvisioningProfile:  os.Getenv("IOS_PROVISIONING_PROFILE"),
	}
}

// BuildsEnabled reports whether Codemagic credentials are configured.
func (c *Config) BuildsEnabled() bool {
	return c.CodemagicAPIToken != "" && c.CodemagicAppID != ""
}

// PublishingEnabled reports whether a target repository and credentials are configured.
func (c *Config) PublishingEnabled() bool {
	if c.GitHubRepo == "" {
		return false
	}
	return c.GitHubToken != "" || (c.GitHubAppID != "" && c.GitHubPrivateKey != "")
}

func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		trimmed = strings.TrimPrefix(trimmed, "\"")
		trimmed = strings.TrimSuffix(trimmed, "\"")
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.TrimPrefix(trimmed, "'")
		trimmed = strings.TrimSuffix(trimmed, "'")
	}

	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\r", "")
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}

	return trimmed
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if err := c.validateProviderConfig(); err != nil {
		return err
	}

	if err := c.validateBuildConfig(); err != nil {
		return err
	}

	if err := c.validatePublishConfig(); err != nil {
		return err
	}

	c.applyDispatcherDefaults()
	return c.validateDispatcherConfig()
}

func (c *Config) validateProviderConfig() error {
	switch c.Provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for openai provider")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for gemini provider")
		}
	default:
		return fmt.Errorf("invalid provider: %s (must be 'openai' or 'gemini')", c.Provider)
	}
	return nil
}

func (c *Config) validateBuildConfig() error {
	if c.CodemagicAPIToken != "" && c.CodemagicAppID == "" {
		return fmt.Errorf("CODEMAGIC_APP_ID is required when CODEMAGIC_API_TOKEN is set")
	}
	if !c.BuildsEnabled() {
		zap.L().Warn("CODEMAGIC_API_TOKEN not set, mobile builds are disabled")
	}
	if c.BuildPollInterval <= 0 {
		return fmt.Errorf("BUILD_POLL_INTERVAL_SECONDS must be greater than 0")
	}
	if c.BuildMaxWait < c.BuildPollInterval {
		return fmt.Errorf("BUILD_MAX_WAIT_SECONDS must be >= BUILD_POLL_INTERVAL_SECONDS")
	}
	return nil
}

func (c *Config) validatePublishConfig() error {
	if c.GitHubRepo == "" {
		return nil
	}
	if parts := strings.Split(c.GitHubRepo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("GITHUB_REPO must be in owner/repo format, got %q", c.GitHubRepo)
	}
	if c.GitHubToken == "" && c.GitHubAppID == "" {
		return fmt.Errorf("GITHUB_TOKEN or GITHUB_APP_ID is required when GITHUB_REPO is set")
	}
	if c.GitHubToken == "" && c.GitHubPrivateKey == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY is required for GitHub App publishing")
	}
	return nil
}

func (c *Config) applyDispatcherDefaults() {
	if c.DispatcherWorkers <= 0 {
		c.DispatcherWorkers = 2
	}
	if c.DispatcherQueueSize <= 0 {
		c.DispatcherQueueSize = 16
	}
	if c.DispatcherMaxAttempts <= 0 {
		c.DispatcherMaxAttempts = 1
	}
	if c.DispatcherRetryInitial <= 0 {
		c.DispatcherRetryInitial = 15 * time.Second
	}
	if c.DispatcherRetryMax <= 0 {
		c.DispatcherRetryMax = 5 * time.Minute
	}
	if c.DispatcherBackoffMultiplier < 1 {
		c.DispatcherBackoffMultiplier = 2
	}
}

func (c *Config) validateDispatcherConfig() error {
	if c.DispatcherTaskTimeout < 0 {
		return fmt.Errorf("DISPATCHER_TASK_TIMEOUT_SECONDS must not be negative")
	}
	if c.DispatcherRetryMax < c.DispatcherRetryInitial {
		return fmt.Errorf("DISPATCHER_RETRY_MAX_SECONDS must be >= DISPATCHER_RETRY_SECONDS")
	}
	return nil
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
