package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/stevemurr/simple-items-server/config"
	"github.com/stevemurr/simple-items-server/schema"
)

// New creates a Store for cfg.Store.Backend.
//
// Supported backends:
//
//	"file"     - JSON array at data_dir/file.filename (default)
//	"memory"   - in-memory (ephemeral, for testing)
//	"sqlite"   - SQLite database at data_dir/sqlite.filename
//	"redis"    - Redis at redis.addr
//	"mongo"    - MongoDB collection at mongo.uri
//	"dynamodb" - DynamoDB table dynamodb.table
func New(ctx context.Context, cfg config.Config, opts ...Option) (Store, error) {
	switch cfg.Store.Backend {
	case config.BackendFile, "":
		policy := ResetOnError
		if cfg.File.OnError == config.OnErrorFail {
			policy = FailOnError
		}
		s, err := NewJsonFileStore(filepath.Join(cfg.Store.DataDir, cfg.File.Filename), policy, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return NewMemoryStore(opts...), nil
	case config.BackendSqlite:
		s, err := NewSqliteStore(filepath.Join(cfg.Store.DataDir, cfg.Sqlite.Filename), opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("store: redis ping %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisStore(client, cfg.Redis.Prefix, opts...), nil
	case config.BackendMongo:
		sc, err := schema.New(cfg.Schema.Fields)
		if err != nil {
			return nil, err
		}
		s, err := ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Collection, append([]Option{WithSchema(sc)}, opts...)...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendDynamoDB:
		sc, err := schema.New(cfg.Schema.Fields)
		if err != nil {
			return nil, err
		}
		s, err := ConnectDynamo(ctx, cfg.DynamoDB.Table, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint,
			append([]Option{WithSchema(sc)}, opts...)...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: %s)",
			cfg.Store.Backend, strings.Join(config.Backends, ", "))
	}
}
