package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Token    TokenConfig    `yaml:"token"`
	LDAP     LDAPConfig     `yaml:"ldap"`
	Redis    RedisConfig    `yaml:"redis"`
	Sweep    SweepConfig    `yaml:"sweep"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// TokenConfig controls issuance and verification of opaque auth tokens.
// Nullable values (pointers) mean "no TTL" / "no limit" when omitted.
type TokenConfig struct {
	HashAlgorithm             string `yaml:"hash_algorithm"`   // sha512, sha256, sha3-512
	CharacterLength           int    `yaml:"character_length"` // length of the raw token string
	TTLHours                  *int   `yaml:"ttl_hours"`        // null = tokens never expire
	LimitPerUser              *int   `yaml:"limit_per_user"`   // null = unlimited
	SingleTokenPerUser        bool   `yaml:"single_token_per_user"`
	AutoRefresh               bool   `yaml:"auto_refresh"`
	MinRefreshIntervalSeconds int    `yaml:"min_refresh_interval_seconds"`
	AuthHeaderPrefix          string `yaml:"auth_header_prefix"`
}

type LDAPConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseDN       string `yaml:"base_dn"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	UserFilter   string `yaml:"user_filter"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SweepConfig controls the advisory expired-token sweep schedule.
// Sweeps are never required for correctness; every read path filters
// expired records on its own.
type SweepConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		fileCfg := *DefaultConfig()
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
		cfg = &fileCfg
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	defaultTTL := 10
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "tokengate.db",
		},
		Token: TokenConfig{
			HashAlgorithm:             "sha512",
			CharacterLength:           64,
			TTLHours:                  &defaultTTL,
			SingleTokenPerUser:        false,
			AutoRefresh:               false,
			MinRefreshIntervalSeconds: 60,
			AuthHeaderPrefix:          "Token",
		},
		LDAP: LDAPConfig{
			Enabled:    false,
			Port:       389,
			UserFilter: "(uid=%s)",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Schedule: "@hourly",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if algo := os.Getenv("TOKEN_HASH_ALGORITHM"); algo != "" {
		c.Token.HashAlgorithm = algo
	}
	if length := os.Getenv("TOKEN_CHARACTER_LENGTH"); length != "" {
		if v, err := strconv.Atoi(length); err == nil && v > 0 {
			c.Token.CharacterLength = v
		}
	}
	if ttl := os.Getenv("TOKEN_TTL_HOURS"); ttl != "" {
		if v, err := strconv.Atoi(ttl); err == nil {
			if v <= 0 {
				c.Token.TTLHours = nil
			} else {
				c.Token.TTLHours = &v
			}
		}
	}
	if limit := os.Getenv("TOKEN_LIMIT_PER_USER"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			if v <= 0 {
				c.Token.LimitPerUser = nil
			} else {
				c.Token.LimitPerUser = &v
			}
		}
	}
	if single := os.Getenv("TOKEN_SINGLE_PER_USER"); single != "" {
		c.Token.SingleTokenPerUser = single == "true" || single == "1"
	}
	if refresh := os.Getenv("TOKEN_AUTO_REFRESH"); refresh != "" {
		c.Token.AutoRefresh = refresh == "true" || refresh == "1"
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
}
