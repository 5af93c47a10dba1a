package config

// This file defines the Redis client constructor.  Redis is the persistent
// store for session views, guard leases, lobby membership and wallet hold
// records, and it also backs the rate limiter.  Unlike a cache, the
// coordinator cannot run without it, so connection failures are returned.

import (
    "context"
    "crypto/tls"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates a Redis client from cfg and pings it with a
// short timeout.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
    addr := cfg.Addr
    if cfg.Host != "" && cfg.Port != "" {
        addr = cfg.Host + ":" + cfg.Port
    }
    var tlsConf *tls.Config
    if cfg.TLS {
        tlsConf = &tls.Config{InsecureSkipVerify: true}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      addr,
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis ping %s: %w", addr, err)
    }
    return client, nil
}
