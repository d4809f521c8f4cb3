package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTokenExpiration = 24 * time.Hour
	DefaultOTPTTL          = 5 * time.Minute
	DefaultStoreTimeout    = 5 * time.Second
	DefaultSMTPPort        = 587
)

type Config struct {
	DatabaseDSN     string
	ServerAddr      string
	SigningKey      []byte
	AllowedOrigins  []string
	TokenExpiration time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	OTPTTL        time.Duration

	// SMTPHost enables mailing one-time codes. Without it codes are logged.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// StoreTimeout bounds every persistence call issued on behalf of a live event.
	StoreTimeout time.Duration
}

// FileConfig is the shape of the optional YAML config file. Empty fields are
// left for flags and environment variables to fill.
type FileConfig struct {
	Addr            string   `yaml:"addr"`
	DSN             string   `yaml:"dsn"`
	SigningKey      string   `yaml:"signing_key"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	TokenExpiration string   `yaml:"token_expiration"`
	StoreTimeout    string   `yaml:"store_timeout"`
	Redis           struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	OTPTTL string `yaml:"otp_ttl"`
	SMTP   struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
}

// ReadFile loads a FileConfig from a YAML document on disk.
func ReadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return ParseFile(data)
}

func ParseFile(data []byte) (*FileConfig, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	for name, v := range map[string]string{
		"token_expiration": fc.TokenExpiration,
		"store_timeout":    fc.StoreTimeout,
		"otp_ttl":          fc.OTPTTL,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}

	return &fc, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:     databaseDSN,
		ServerAddr:      serverAddr,
		SigningKey:      signingKey,
		AllowedOrigins:  allowedOrigins,
		TokenExpiration: DefaultTokenExpiration,
		OTPTTL:          DefaultOTPTTL,
		StoreTimeout:    DefaultStoreTimeout,
		SMTPPort:        DefaultSMTPPort,
	}, nil
}
