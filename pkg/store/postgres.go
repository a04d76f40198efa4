package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pgxPoolNewWithConfig   = pgxpool.NewWithConfig
	postgresConnectRetries = 30
	postgresRetryDelay     = 2 * time.Second
	postgresPingTimeout    = 2 * time.Second
	postgresSleep          = time.Sleep
)

type PostgresOptions struct {
	URL      string
	User     string
	Password string
	Host     string
	Port     string
	Database string
	SSLMode  string
}

// NewPostgresPool retries the initial connection so the gateway survives
// database startup races in container deployments.
func NewPostgresPool(ctx context.Context, opts PostgresOptions) (*pgxpool.Pool, error) {
	dsn := opts.URL
	if dsn == "" {
		dsn = buildPostgresURL(opts)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	var lastErr error
	for i := 0; i < postgresConnectRetries; i++ {
		pool, err := pgxPoolNewWithConfig(ctx, cfg)
		if err != nil {
			lastErr = err
			postgresSleep(postgresRetryDelay)
			continue
		}
		ctxPing, cancel := context.WithTimeout(ctx, postgresPingTimeout)
		err = pool.Ping(ctxPing)
		cancel()
		if err == nil {
			return pool, nil
		}
		lastErr = err
		pool.Close()
		postgresSleep(postgresRetryDelay)
	}
	return nil, fmt.Errorf("postgres ping retries exhausted: %w", lastErr)
}

func buildPostgresURL(opts PostgresOptions) string {
	if opts.User == "" {
		opts.User = "scrybe"
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == "" {
		opts.Port = "5432"
	}
	if opts.Database == "" {
		opts.Database = "scrybe"
	}
	if opts.SSLMode == "" {
		opts.SSLMode = "disable"
	}
	uri := &url.URL{
		Scheme: "postgres",
		Host:   opts.Host + ":" + opts.Port,
		Path:   "/" + opts.Database,
	}
	if opts.Password != "" {
		uri.User = url.UserPassword(opts.User, opts.Password)
	} else {
		uri.User = url.User(opts.User)
	}
	q := uri.Query()
	q.Set("sslmode", opts.SSLMode)
	uri.RawQuery = q.Encode()
	return uri.String()
}
