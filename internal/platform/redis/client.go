package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"rekamed/internal/platform/config"
)

// PoolMetrics mirrors go-redis pool statistics into Prometheus.
type PoolMetrics struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	timeouts prometheus.Counter
	total    prometheus.Gauge
	idle     prometheus.Gauge
}

func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	m := &PoolMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rekamed_redis_pool_hits_total",
			Help: "Number of times a connection was found in the pool",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rekamed_redis_pool_misses_total",
			Help: "Number of times a connection was not found in the pool",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rekamed_redis_pool_timeouts_total",
			Help: "Number of times a connection was not obtained due to timeout",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rekamed_redis_pool_total_conns",
			Help: "Number of total connections in the pool",
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rekamed_redis_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		}),
	}
	reg.MustRegister(m.hits, m.misses, m.timeouts, m.total, m.idle)
	return m
}

// Client wraps the go-redis client. It backs the access-log projection and
// the ledger tailer cursor.
type Client struct {
	*redis.Client
	metrics   *PoolMetrics
	lastStats *redis.PoolStats
}

// New connects to cfg.URL. Returns nil when Redis is not configured.
func New(ctx context.Context, cfg config.RedisConfig, m *PoolMetrics) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client, metrics: m}, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RunPoolStats records pool statistics every interval until ctx is done.
func (c *Client) RunPoolStats(ctx context.Context, interval time.Duration) error {
	if c.metrics == nil {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.recordPoolStats()
		}
	}
}

func (c *Client) recordPoolStats() {
	stats := c.PoolStats()
	c.metrics.total.Set(float64(stats.TotalConns))
	c.metrics.idle.Set(float64(stats.IdleConns))

	var prev redis.PoolStats
	if c.lastStats != nil {
		prev = *c.lastStats
	}
	if stats.Hits >= prev.Hits {
		c.metrics.hits.Add(float64(stats.Hits - prev.Hits))
	}
	if stats.Misses >= prev.Misses {
		c.metrics.misses.Add(float64(stats.Misses - prev.Misses))
	}
	if stats.Timeouts >= prev.Timeouts {
		c.metrics.timeouts.Add(float64(stats.Timeouts - prev.Timeouts))
	}
	c.lastStats = stats
}
