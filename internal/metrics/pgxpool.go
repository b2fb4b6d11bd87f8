package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// RegisterPoolMetrics exposes connection pool statistics of the record
// store and, when rdb is non-nil, of the Redis lock client. A nil pool is
// skipped as well.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool, rdb *redis.Client) {
	if pool != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "pgxpool_acquired_conns",
				Help: "Number of currently acquired connections in the pool",
			}, func() float64 {
				return float64(pool.Stat().AcquiredConns())
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "pgxpool_max_conns",
				Help: "Maximum number of connections in the pool",
			}, func() float64 {
				return float64(pool.Stat().MaxConns())
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "pgxpool_idle_conns",
				Help: "Number of idle connections in the pool",
			}, func() float64 {
				return float64(pool.Stat().IdleConns())
			}),
		)
	}

	if rdb != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "redis_pool_total_conns",
				Help: "Total number of connections in the Redis lock client pool",
			}, func() float64 {
				return float64(rdb.PoolStats().TotalConns)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "redis_pool_idle_conns",
				Help: "Number of idle connections in the Redis lock client pool",
			}, func() float64 {
				return float64(rdb.PoolStats().IdleConns)
			}),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "redis_pool_timeouts_total",
				Help: "Times a connection could not be taken from the Redis lock client pool in time",
			}, func() float64 {
				return float64(rdb.PoolStats().Timeouts)
			}),
		)
	}
}
