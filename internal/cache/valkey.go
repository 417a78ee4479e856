// Package cache holds the Valkey connection shared by bearer sessions and
// the feed response cache, and the feed cache itself.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the startup check against Valkey.
const pingTimeout = 5 * time.Second

// Options locates the Valkey instance.
type Options struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr joins host and port, bracketing IPv6 hosts.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, o.Port)
}

// ConnectValkey opens the client used for session lookups and cached feed
// pages. Startup fails when Valkey does not answer a ping.
func ConnectValkey(ctx context.Context, o Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr(),
		Password: o.Password,
		DB:       o.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping %s: %w", o.Addr(), err)
	}

	slog.Info("valkey connected", "addr", o.Addr(), "db", o.DB)
	return client, nil
}
