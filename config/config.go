package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Watcher  WatcherConfig  `yaml:"watcher"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	NotificationsTopicName string `yaml:"notifications_topic_name"`
	ConsumerGroup          string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type WatcherConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// "postgres" (default when database host is set) or "file".
	StateBackend  string `yaml:"state_backend"`
	StateFilePath string `yaml:"state_file_path"`

	// "log" (default) or "kafka".
	NotifierMode string `yaml:"notifier_mode"`

	GLSBaseURL string `yaml:"gls_base_url"`
	GLSCaller  string `yaml:"gls_caller"`

	StateCacheTTLSeconds int `yaml:"state_cache_ttl_seconds"`
	WorkerConcurrency    int `yaml:"worker_concurrency"`
	RateLimitPerMinute   int `yaml:"rate_limit_per_minute"`

	SwaggerPath string `yaml:"swagger_path"`

	// Extra carrier field aliases, appended to the built-in tables. The
	// GLS schema is undocumented; new variants land here, not in code.
	ExtraTextAliases []string `yaml:"extra_text_aliases"`
	ExtraDateAliases []string `yaml:"extra_date_aliases"`
	ExtraTimeAliases []string `yaml:"extra_time_aliases"`
	ExtraCityAliases []string `yaml:"extra_city_aliases"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
