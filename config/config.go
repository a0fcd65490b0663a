// Package config loads server configuration from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by store.New.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSqlite   = "sqlite"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// Backends lists every supported store backend.
var Backends = []string{BackendMemory, BackendFile, BackendSqlite, BackendMongo, BackendRedis, BackendDynamoDB}

// What the file store does when the items file cannot be read or written.
const (
	OnErrorReset = "reset" // log, swallow and continue with an empty collection
	OnErrorFail  = "fail"  // return the error to the caller
)

// Config is the complete server configuration.
type Config struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	File     FileConfig     `yaml:"file"`
	Sqlite   SqliteConfig   `yaml:"sqlite"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	Schema   SchemaConfig   `yaml:"schema"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"`
}

type FileConfig struct {
	Filename string `yaml:"filename"`
	OnError  string `yaml:"on_error"`
}

type SqliteConfig struct {
	Filename string `yaml:"filename"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Collection string `yaml:"collection"`
}

type RedisConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

type DynamoDBConfig struct {
	Table    string `yaml:"table"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// SchemaConfig declares item fields, beyond isActive and lastUpdate, that
// document-store backends keep. Values are field types.
type SchemaConfig struct {
	Fields map[string]string `yaml:"fields"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           "8080",
		AllowedOrigins: []string{"*"},
		Log:            LogConfig{Level: "info", Format: "text"},
		Store:          StoreConfig{Backend: BackendFile, DataDir: "./data"},
		File:           FileConfig{Filename: "items.json", OnError: OnErrorReset},
		Sqlite:         SqliteConfig{Filename: "items.db"},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017/backend-test",
			Collection: "items",
		},
		Redis:    RedisConfig{Addr: "localhost:6379", Prefix: "items"},
		DynamoDB: DynamoDBConfig{Table: "items", Region: "us-east-1"},
	}
}

// Load builds a Config with Read and validates it.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read builds a Config from the defaults, the YAML file at path (skipped when
// path is empty) and finally the environment. The result is not validated, so
// callers can layer more settings on top first.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	env := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	env(&c.Host, "HOST")
	env(&c.Port, "PORT")
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	env(&c.Log.Level, "LOG_LEVEL")
	env(&c.Log.Format, "LOG_FORMAT")
	env(&c.Store.Backend, "STORE_BACKEND")
	env(&c.Store.DataDir, "DATA_DIR")
	env(&c.File.Filename, "ITEMS_FILENAME")
	env(&c.File.OnError, "ITEMS_ON_ERROR")
	env(&c.Sqlite.Filename, "SQLITE_FILENAME")
	env(&c.Mongo.URI, "MONGODB_URI")
	env(&c.Mongo.Collection, "MONGODB_COLLECTION")
	env(&c.Redis.Addr, "REDIS_ADDR")
	env(&c.Redis.Prefix, "REDIS_PREFIX")
	env(&c.DynamoDB.Table, "DYNAMODB_TABLE")
	env(&c.DynamoDB.Region, "AWS_REGION")
	env(&c.DynamoDB.Endpoint, "DYNAMODB_ENDPOINT")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if !contains(Backends, c.Store.Backend) {
		return fmt.Errorf("config: unknown store backend %q (supported: %s)",
			c.Store.Backend, strings.Join(Backends, ", "))
	}
	if c.File.OnError != OnErrorReset && c.File.OnError != OnErrorFail {
		return fmt.Errorf("config: unknown file.on_error %q (supported: %s, %s)",
			c.File.OnError, OnErrorReset, OnErrorFail)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
