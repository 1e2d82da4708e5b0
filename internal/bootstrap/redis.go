package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dhanmatrix/dhanmatrix/config"
)

// ConnectRedis builds a direct, sentinel or cluster client from cfg and pings it.
//
//nolint:ireturn // the topology is chosen at runtime.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, desc, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, closeAfter(fmt.Errorf("ping redis: %w", err), client.Close)
	}

	cfg.logger().InfoContext(ctx, "redis connected", "addr", desc)
	return client, nil
}

// redisOptions maps the config onto go-redis universal options. The second result is a
// credential-free description for logs.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	switch {
	case cfg.UseCluster:
		return clusterOptions(cfg)
	case cfg.UseSentinel:
		nodes := compact(cfg.SentinelNodes)
		if len(nodes) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		return &redis.UniversalOptions{
			MasterName:       cfg.SentinelMasterName,
			Addrs:            nodes,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
		}, "sentinel:" + cfg.SentinelMasterName, nil
	default:
		return directOptions(cfg)
	}
}

func directOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, "", errors.New("redis direct configuration requires a URI")
	}
	if !isRedisURL(uri) {
		return &redis.UniversalOptions{Addrs: []string{uri}, Password: cfg.Password}, uri, nil
	}
	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse redis url: %w", err)
	}
	return &redis.UniversalOptions{
		Addrs:     []string{parsed.Addr},
		Username:  parsed.Username,
		Password:  parsed.Password,
		DB:        parsed.DB,
		TLSConfig: parsed.TLSConfig,
	}, parsed.Addr, nil
}

// clusterOptions uses CLUSTER_NODES, or the URI as a single seed node when none are listed.
func clusterOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	opts := &redis.UniversalOptions{Addrs: compact(cfg.ClusterNodes), Password: cfg.Password, IsClusterMode: true}
	if len(opts.Addrs) == 0 {
		seed := strings.TrimSpace(cfg.URI)
		if isRedisURL(seed) {
			parsed, err := redis.ParseURL(seed)
			if err != nil {
				return nil, "", fmt.Errorf("parse redis cluster url: %w", err)
			}
			seed = parsed.Addr
			opts.Username = parsed.Username
			opts.TLSConfig = parsed.TLSConfig
			if parsed.Password != "" {
				opts.Password = parsed.Password
			}
		}
		if seed != "" {
			opts.Addrs = []string{seed}
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, "", errors.New("redis cluster configuration requires at least one address")
	}
	return opts, "cluster:" + strings.Join(opts.Addrs, ","), nil
}

func compact(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return slices.Clip(out)
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}
