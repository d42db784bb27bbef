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
	Milvus  MilvusConfig
	LLM     LLMConfig
	Engine  EngineConfig
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
}

type MilvusConfig struct {
	Enabled        bool
	Endpoint       string
	CollectionName string
}

type LLMConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type EngineConfig struct {
	EmbeddingDim         int
	SimilarTopK          int
	ClassifierMaxChars   int
	TrainingMinEntries   int
	TrainingNewEntries   int
	ResultCacheTTLSec    int
	EmbeddingCacheTTLSec int
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
	viper.AddConfigPath("/etc/bidmatch")

	viper.SetEnvPrefix("BIDMATCH")
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
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/bidmatch.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("milvus.enabled", false)
	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "memory_bank")

	viper.SetDefault("llm.apiKey", "")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 30)

	viper.SetDefault("engine.embeddingDim", 768)
	viper.SetDefault("engine.similarTopK", 5)
	viper.SetDefault("engine.classifierMaxChars", 8000)
	viper.SetDefault("engine.trainingMinEntries", 10)
	viper.SetDefault("engine.trainingNewEntries", 5)
	viper.SetDefault("engine.resultCacheTTLSec", 3600)
	viper.SetDefault("engine.embeddingCacheTTLSec", 86400)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
