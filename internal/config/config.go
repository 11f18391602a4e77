package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the casebeam binary.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	VectorDB  VectorDBConfig  `yaml:"vectordb"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Mail      MailConfig      `yaml:"mail"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	StaticDir   string   `yaml:"static_dir"`
	UploadDir   string   `yaml:"upload_dir"`
	BaseURL     string   `yaml:"base_url"` // used in links inside emails
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite3" or "postgres"
	Conn   string `yaml:"conn"`
}

type AuthConfig struct {
	CookieSecret string        `yaml:"cookie_secret"`
	CookieSecure bool          `yaml:"cookie_secure"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// LLMConfig configures the chat / summarization model.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float32 `yaml:"temperature"`
}

type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // "gemini", "openai" or "mock"
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"` // openai only
	APIKeyEnv   string `yaml:"api_key_env"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type VectorDBConfig struct {
	Provider    string `yaml:"provider"` // "qdrant", "local" or "memory"
	URL         string `yaml:"url"`
	Path        string `yaml:"path"` // local only
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type RetrievalConfig struct {
	TopK      int           `yaml:"top_k"`
	Overfetch int           `yaml:"overfetch"` // chunks fetched per returned document
	MinScore  float32       `yaml:"min_score"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type MailConfig struct {
	Provider  string `yaml:"provider"` // "resend" or "log"
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	From      string `yaml:"from"`
}

type IngestConfig struct {
	Manifest          string   `yaml:"manifest"`
	SentencesPerChunk int      `yaml:"sentences_per_chunk"`
	OverlapSentences  int      `yaml:"overlap_sentences"`
	BatchSize         int      `yaml:"batch_size"`
	Paths             []string `yaml:"paths"` // ingested on serve start when set
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			CORSOrigins: []string{"http://localhost:3000"},
			StaticDir:   "./static",
			UploadDir:   "./uploads",
			BaseURL:     "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Conn:   "./casebeam.db",
		},
		Auth: AuthConfig{
			CookieSecret: "casebeam-dev-secret-key-change-in-prod",
			TokenTTL:     7 * 24 * time.Hour,
		},
		LLM: LLMConfig{
			Model:       "gemini-2.5-flash",
			APIKeyEnv:   "GEMINI_API_KEY",
			Temperature: 0.2,
		},
		Embedding: EmbeddingConfig{
			Provider:    "gemini",
			Model:       "gemini-embedding-001",
			BaseURL:     "https://api.openai.com/v1",
			APIKeyEnv:   "GEMINI_API_KEY",
			Dimension:   768,
			BatchSize:   32,
			TimeoutSecs: 30,
		},
		VectorDB: VectorDBConfig{
			Provider:    "qdrant",
			URL:         "http://localhost:6333",
			APIKeyEnv:   "QDRANT_API_KEY",
			Collection:  "legal_documents",
			Path:        "./vectors.db",
			TimeoutSecs: 15,
		},
		Retrieval: RetrievalConfig{
			TopK:      8,
			Overfetch: 4,
			CacheSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		Mail: MailConfig{
			Provider:  "log",
			BaseURL:   "https://api.resend.com",
			APIKeyEnv: "RESEND_API_KEY",
			From:      "CaseBeam <noreply@casebeam.local>",
		},
		Ingest: IngestConfig{
			Manifest:          "./ingest.db",
			SentencesPerChunk: 6,
			OverlapSentences:  1,
			BatchSize:         32,
		},
	}
}

// Load reads .env files, the YAML config at path and environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_CONN"); v != "" {
		c.Database.Conn = v
	}
	if v := os.Getenv("COOKIE_SECRET"); v != "" {
		c.Auth.CookieSecret = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.VectorDB.URL = v
	}
	if v := os.Getenv("MAIL_FROM"); v != "" {
		c.Mail.From = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver: unsupported %q", c.Database.Driver)
	}
	switch c.Embedding.Provider {
	case "gemini", "openai", "mock":
	default:
		return fmt.Errorf("embedding.provider: unsupported %q", c.Embedding.Provider)
	}
	switch c.VectorDB.Provider {
	case "qdrant", "local", "memory":
	default:
		return fmt.Errorf("vectordb.provider: unsupported %q", c.VectorDB.Provider)
	}
	switch c.Mail.Provider {
	case "resend", "log":
	default:
		return fmt.Errorf("mail.provider: unsupported %q", c.Mail.Provider)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Auth.CookieSecret == "" {
		return errors.New("auth.cookie_secret is empty")
	}
	return nil
}

// Secret returns the value of the environment variable named by envName.
func Secret(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}
