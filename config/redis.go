package config

import "time"

// RedisConfig is read from REDIS_*. URI may be host:port or a redis:// URL. Sentinel and
// cluster modes are mutually exclusive.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`

	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`

	UseCluster   bool     `env:"USE_CLUSTER"   envDefault:"false"`
	ClusterNodes []string `env:"CLUSTER_NODES" envDefault:""`

	// SessionEventChannel carries session changes between app instances.
	SessionEventChannel string `env:"SESSION_EVENT_CHANNEL" envDefault:"dhanmatrix:session-events"`
}

// CacheConfig tunes the Redis copy of the users and admins documents.
type CacheConfig struct {
	DocumentTTL       time.Duration `env:"CACHE_DOCUMENT_TTL"        envDefault:"24h"`
	ServerReadTimeout time.Duration `env:"CACHE_SERVER_READ_TIMEOUT" envDefault:"10s"`
}

func (c *CacheConfig) Sanitize() {
	c.DocumentTTL = positiveOr(c.DocumentTTL, 24*time.Hour)
	c.ServerReadTimeout = positiveOr(c.ServerReadTimeout, 10*time.Second)
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
