package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions carries the connection settings loaded by the caller.
// Secret loading itself stays in cmd; this package only consumes values.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	TLS         bool
	TLSInsecure bool
	ServerName  string
	CACertFile  string
	CertFile    string
	KeyFile     string
}

// NewRedis connects and pings; callers treat a nil client as "no Redis".
func NewRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	tlsConfig, err := redisTLSConfig(opts)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:      opts.Addr,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: tlsConfig,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func redisTLSConfig(opts RedisOptions) (*tls.Config, error) {
	if !opts.TLS {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.TLSInsecure {
		cfg.InsecureSkipVerify = true
	}
	if opts.ServerName != "" {
		cfg.ServerName = opts.ServerName
	}
	if opts.CACertFile != "" {
		caBytes, err := os.ReadFile(filepath.Clean(opts.CACertFile))
		if err != nil {
			return nil, fmt.Errorf("read redis CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("parse redis CA cert: no valid certificates")
		}
		cfg.RootCAs = pool
	}
	if opts.CertFile != "" || opts.KeyFile != "" {
		if opts.CertFile == "" || opts.KeyFile == "" {
			return nil, fmt.Errorf("redis mTLS requires both cert and key files")
		}
		cert, err := tls.LoadX509KeyPair(filepath.Clean(opts.CertFile), filepath.Clean(opts.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("load redis mTLS keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
