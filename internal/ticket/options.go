package ticket

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/rnaget/internal/resource"
)

const (
	// DefaultTTL is how long a Ready artifact stays downloadable.
	DefaultTTL = time.Hour
	// DefaultSweepInterval is the period of the background sweep.
	DefaultSweepInterval = time.Minute
	// DefaultPrefix is the blob name prefix of artifact payloads.
	DefaultPrefix = "artifacts/"
)

// Options configures a Manager.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Prefix        string
	// Compress stores payloads as zstd frames.
	Compress  bool
	Ledger    Ledger
	Resources *resource.Controller
	Logger    *slog.Logger
	Clock     func() time.Time
	NewID     func() string
}

// Option mutates Options.
type Option func(*Options)

// WithTTL sets the artifact lifetime.
func WithTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TTL = d
		}
	}
}

// WithSweepInterval sets the background sweep period. Zero disables the
// background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Options) {
		o.SweepInterval = d
	}
}

// WithPrefix sets the payload blob prefix.
func WithPrefix(p string) Option {
	return func(o *Options) {
		o.Prefix = p
	}
}

// WithCompression enables zstd payload compression.
func WithCompression(enabled bool) Option {
	return func(o *Options) {
		o.Compress = enabled
	}
}

// WithLedger records Ready artifacts in l.
func WithLedger(l Ledger) Option {
	return func(o *Options) {
		o.Ledger = l
	}
}

// WithResourceController limits concurrent builds and payload write rate.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *Options) {
		o.Resources = rc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	}
}

// WithIDGenerator overrides ticket ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *Options) {
		if gen != nil {
			o.NewID = gen
		}
	}
}

func defaultOptions() Options {
	return Options{
		TTL:           DefaultTTL,
		SweepInterval: DefaultSweepInterval,
		Prefix:        DefaultPrefix,
		Logger:        slog.New(slog.DiscardHandler),
		Clock:         time.Now,
		NewID:         uuid.NewString,
	}
}
