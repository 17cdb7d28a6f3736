package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Scraper ScraperConfig
	Dedup   DedupConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type LLMConfig struct {
	APIKey           string
	BaseURL          string
	CleaningModel    string
	QAModel          string
	Temperature      float32
	MaxTokensClean   int
	MaxTokensQA      int
	TimeoutSec       int
	TargetLanguage   string
	MaxCleaningInput int
}

type ScraperConfig struct {
	MaxRetries    int
	BackoffFactor float64
	TimeoutSec    int
	DelayMS       int
	UserAgents    []string
}

type DedupConfig struct {
	SimilarityThreshold float64
	ContextThreshold    float64
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/qaforge")

	viper.SetEnvPrefix("QAFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 120)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/qaforge.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlHours", 0)

	viper.SetDefault("llm.baseURL", "")
	viper.SetDefault("llm.cleaningModel", "gpt-4o-mini")
	viper.SetDefault("llm.qaModel", "gpt-4o")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokensClean", 4096)
	viper.SetDefault("llm.maxTokensQA", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.targetLanguage", "en")
	viper.SetDefault("llm.maxCleaningInput", 10000)

	viper.SetDefault("scraper.maxRetries", 3)
	viper.SetDefault("scraper.backoffFactor", 0.3)
	viper.SetDefault("scraper.timeoutSec", 15)
	viper.SetDefault("scraper.delayMS", 200)

	viper.SetDefault("dedup.similarityThreshold", 0.9)
	viper.SetDefault("dedup.contextThreshold", 0.95)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
