package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type ScraperConfig struct {
	UserAgent     string `yaml:"userAgent"`
	TimeoutMs     int    `yaml:"timeoutMs"`
	WaitForMs     int    `yaml:"waitForMs"`
	RespectRobots bool   `yaml:"respectRobots"`
}

type RodConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BrowserURL string `yaml:"browserURL"`
}

type LLMConfig struct {
	APIKey         string `yaml:"apiKey"`
	BaseURL        string `yaml:"baseURL"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	MaxRetries     int    `yaml:"maxRetries"`
}

type SchedulerConfig struct {
	Enabled     bool `yaml:"enabled"`
	TickMinutes int  `yaml:"tickMinutes"`
}

type GatewayConfig struct {
	SyncTimeoutSeconds int `yaml:"syncTimeoutSeconds"`
	PollIntervalMs     int `yaml:"pollIntervalMs"`
}

type BusConfig struct {
	MaxRetries int `yaml:"maxRetries"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Rod       RodConfig       `yaml:"rod"`
	LLM       LLMConfig       `yaml:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Bus       BusConfig       `yaml:"bus"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	cfg.applyEnv()
	return &cfg
}

// applyEnv lets the provider credentials come from the environment so that
// config files can be committed without secrets. A missing credential is not
// fatal here; the owning client reports a clean failure when first used.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("BROWSER_CONTROL_URL"); v != "" {
		c.Rod.BrowserURL = v
		c.Rod.Enabled = true
	}
}
