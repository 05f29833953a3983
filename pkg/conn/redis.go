package conn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

const defaultRedisAddr = "localhost:6379"

// RedisOption defines connection options for redis.
type RedisOption struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewRedis creates a redis client and checks the connection.
func NewRedis(ctx context.Context, option RedisOption) (*redis.Client, error) {
	addr := option.Addr
	if addr == "" {
		addr = defaultRedisAddr
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    option.Password,
		DB:          option.DB,
		DialTimeout: option.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis").With("addr", addr)
	}
	return client, nil
}
