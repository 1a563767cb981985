package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Discord    DiscordConfig    `mapstructure:"discord"`
	Database   DatabaseConfig   `mapstructure:"database"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Categories []CategorySeed   `mapstructure:"categories"`
	Channels   []ChannelSeed    `mapstructure:"channels"`
}

type DiscordConfig struct {
	Token   string `mapstructure:"token"`
	GuildID string `mapstructure:"guild_id"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type RateLimitConfig struct {
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	BatchSize         int           `mapstructure:"batch_size"`
	BatchDelay        time.Duration `mapstructure:"batch_delay"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap"`
}

type DiscoveryConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	ArchivedPageLimit int           `mapstructure:"archived_page_limit"`
}

type IngestConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	Workers   int `mapstructure:"workers"`
}

type ClassifierConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// CategorySeed configures one category rule: the container id, a phase tag,
// and optional per-id overrides.
type CategorySeed struct {
	ID         string   `mapstructure:"id"`
	Topic      string   `mapstructure:"topic"`
	PhaseTag   string   `mapstructure:"phase_tag"`
	Monitoring *bool    `mapstructure:"monitoring"`
	Include    []string `mapstructure:"include"`
	Exclude    []string `mapstructure:"exclude"`
}

// ChannelSeed pins an individually configured channel. It always wins over a
// category-derived config for the same id.
type ChannelSeed struct {
	ID         string `mapstructure:"id"`
	Topic      string `mapstructure:"topic"`
	PhaseTag   string `mapstructure:"phase_tag"`
	Monitoring *bool  `mapstructure:"monitoring"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("ratelimit.requests_per_second", 8)
	v.SetDefault("ratelimit.base_delay", "125ms")
	v.SetDefault("ratelimit.batch_size", 3)
	v.SetDefault("ratelimit.batch_delay", "500ms")
	v.SetDefault("ratelimit.retry_attempts", 3)
	v.SetDefault("ratelimit.backoff_base", "500ms")
	v.SetDefault("ratelimit.backoff_cap", "10s")
	v.SetDefault("discovery.refresh_interval", "30m")
	v.SetDefault("discovery.archived_page_limit", 25)
	v.SetDefault("ingest.queue_size", 1024)
	v.SetDefault("ingest.workers", 8)
	v.SetDefault("classifier.enabled", false)
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 50)
	v.SetDefault("openai.temperature", 0.2)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("DISCORD_TOKEN"); token != "" {
		config.Discord.Token = token
	}
	if guild := v.GetString("DISCORD_GUILD_ID"); guild != "" {
		config.Discord.GuildID = guild
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if config.Discord.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}

	return &config, nil
}

// Monitoring resolves the optional monitoring flag, defaulting to enabled.
func (s CategorySeed) MonitoringEnabled() bool {
	return s.Monitoring == nil || *s.Monitoring
}

func (s ChannelSeed) MonitoringEnabled() bool {
	return s.Monitoring == nil || *s.Monitoring
}
