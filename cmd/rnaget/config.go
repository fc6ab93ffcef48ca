package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/hupe1980/rnaget"
	"github.com/hupe1980/rnaget/blobstore"
	"github.com/hupe1980/rnaget/blobstore/minio"
	"github.com/hupe1980/rnaget/blobstore/s3"
	"github.com/hupe1980/rnaget/internal/cache"
	"github.com/hupe1980/rnaget/internal/sqlstore"
)

// envKeyReplacer maps nested keys to env names: store.root -> RNAGET_STORE_ROOT.
var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

const (
	matrixPrefix = "matrices/"
	matrixExt    = ".rnam"
)

// config is the resolved CLI configuration.
type config struct {
	Backend   string
	Root      string
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Secure    bool
	Catalog   string
	CacheSize int64
	LogLevel  string
	LogFormat string
}

func loadConfig(v *viper.Viper) config {
	c := config{
		Backend:   strings.ToLower(v.GetString("store.backend")),
		Root:      v.GetString("store.root"),
		Bucket:    v.GetString("store.bucket"),
		Prefix:    v.GetString("store.prefix"),
		Endpoint:  v.GetString("store.endpoint"),
		Region:    v.GetString("store.region"),
		AccessKey: v.GetString("store.access_key"),
		SecretKey: v.GetString("store.secret_key"),
		Secure:    v.GetBool("store.secure"),
		Catalog:   v.GetString("catalog.path"),
		CacheSize: v.GetInt64("cache.bytes"),
		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
	}
	if c.Backend == "" {
		c.Backend = "local"
	}
	if c.Root == "" {
		c.Root = "data"
	}
	if c.Catalog == "" {
		c.Catalog = filepath.Join(c.Root, "rnaget.db")
	}
	return c
}

func newLogger(c config) (*rnaget.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		return rnaget.NewTextLogger(level), nil
	case "json":
		return rnaget.NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", c.LogFormat)
	}
}

// openStore returns the configured blob store. Remote stores are also
// returned wrapped in a block cache for matrix reads.
func openStore(ctx context.Context, c config) (base, matrices blobstore.BlobStore, err error) {
	switch c.Backend {
	case "local":
		base = blobstore.NewLocalStore(c.Root)
		return base, base, nil
	case "s3":
		if c.Bucket == "" {
			return nil, nil, errors.New("store.bucket is required for s3")
		}
		opts := []s3.Option{s3.WithPrefix(c.Prefix)}
		if c.Region != "" {
			opts = append(opts, s3.WithRegion(c.Region))
		}
		if c.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(c.Endpoint))
		}
		base, err = s3.New(ctx, c.Bucket, opts...)
	case "minio":
		if c.Bucket == "" || c.Endpoint == "" {
			return nil, nil, errors.New("store.bucket and store.endpoint are required for minio")
		}
		base, err = minio.Connect(c.Endpoint, c.AccessKey, c.SecretKey, c.Secure, c.Bucket, c.Prefix)
	default:
		return nil, nil, fmt.Errorf("store.backend: unknown backend %q", c.Backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", c.Backend, err)
	}
	if c.CacheSize <= 0 {
		return base, base, nil
	}
	return base, blobstore.NewCachingStore(base, cache.NewLRUBlockCache(c.CacheSize, nil), 0), nil
}

// env bundles everything a command needs.
type env struct {
	cfg      config
	logger   *rnaget.Logger
	base     blobstore.BlobStore
	matrices blobstore.BlobStore
	catalog  *sqlstore.Store
}

func newEnv(ctx context.Context) (*env, error) {
	c := loadConfig(viper.GetViper())
	logger, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	base, matrices, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}
	catalog, err := sqlstore.Open(c.Catalog)
	if err != nil {
		return nil, err
	}
	return &env{cfg: c, logger: logger, base: base, matrices: matrices, catalog: catalog}, nil
}

func (e *env) Close() error {
	return e.catalog.Close()
}

// service opens the query service on top of the catalog.
func (e *env) service(ctx context.Context, opts ...rnaget.Option) (*rnaget.Service, error) {
	opts = append([]rnaget.Option{
		rnaget.WithLogger(e.logger),
		rnaget.WithResolver(e.catalog),
		rnaget.WithLedger(e.catalog),
		rnaget.WithTTL(viper.GetDuration("ticket.ttl")),
		rnaget.WithPayloadCompression(viper.GetBool("ticket.compress")),
		// One-shot commands sweep explicitly.
		rnaget.WithSweepInterval(0),
	}, opts...)
	return rnaget.New(ctx, e.matrices, e.base, opts...)
}

// matrixPath maps a matrix name to its blob name.
func matrixPath(name string) string {
	if strings.HasPrefix(name, matrixPrefix) {
		return name
	}
	if filepath.Ext(name) == "" {
		name += matrixExt
	}
	return matrixPrefix + name
}
