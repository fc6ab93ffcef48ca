package rnaget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/rnaget/blobstore"
	"github.com/hupe1980/rnaget/internal/cache"
	"github.com/hupe1980/rnaget/internal/encoding"
	"github.com/hupe1980/rnaget/internal/matrix"
	"github.com/hupe1980/rnaget/internal/query"
	"github.com/hupe1980/rnaget/internal/resource"
	"github.com/hupe1980/rnaget/internal/ticket"
	"github.com/hupe1980/rnaget/model"
)

// Ticket identifies a materialized query result.
type Ticket struct {
	ID string
	// Source is the matrix blob the result was read from.
	Source      string
	Format      model.Format
	ContentType string
	// Size is the stored payload size in bytes.
	Size      int64
	CreatedAt time.Time
	ExpiresAt time.Time
	// Cached is false only for the request whose build produced the ticket.
	Cached bool
}

func newTicket(a ticket.Artifact, cached bool) *Ticket {
	return &Ticket{
		ID:          a.TicketID,
		Source:      a.Source,
		Format:      a.Format,
		ContentType: a.ContentType,
		Size:        a.Size,
		CreatedAt:   a.CreatedAt,
		ExpiresAt:   a.ExpiresAt,
		Cached:      cached,
	}
}

// Download is an open artifact. Body must be closed by the caller.
type Download struct {
	Ticket
	Body io.ReadCloser
}

// Service answers expression queries with download tickets.
// It is safe for concurrent use.
type Service struct {
	matrices   blobstore.BlobStore
	opts       options
	rc         *resource.Controller
	blockCache cache.BlockCache
	tickets    *ticket.Manager

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
	opening singleflight.Group
}

// handle is a shared, reference-counted open matrix file.
type handle struct {
	path    string
	file    *matrix.File
	refs    int
	evicted bool
}

// New creates a service reading matrices from matrices and storing artifact
// payloads in artifacts. With a ledger configured, unexpired tickets from a
// previous run are recovered.
func New(ctx context.Context, matrices, artifacts blobstore.BlobStore, optFns ...Option) (*Service, error) {
	if matrices == nil || artifacts == nil {
		return nil, errors.New("rnaget: matrix and artifact stores are required")
	}
	o := applyOptions(optFns)

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:    o.limits.MemoryBytes,
		MaxConcurrentBuilds: o.limits.MaxConcurrentBuilds,
		WriteBytesPerSec:    o.limits.WriteBytesPerSec,
	})

	s := &Service{
		matrices: matrices,
		opts:     o,
		rc:       rc,
		handles:  make(map[string]*handle),
	}
	if o.blockCacheSize > 0 {
		s.blockCache = cache.NewLRUBlockCache(o.blockCacheSize, rc)
	}

	topts := []ticket.Option{
		ticket.WithTTL(o.ttl),
		ticket.WithSweepInterval(o.sweepInterval),
		ticket.WithCompression(o.compressPayloads),
		ticket.WithResourceController(rc),
		ticket.WithLogger(o.logger.Logger),
		ticket.WithClock(o.clock),
	}
	if o.ledger != nil {
		topts = append(topts, ticket.WithLedger(o.ledger))
	}
	s.tickets = ticket.NewManager(artifacts, topts...)

	if o.ledger != nil {
		n, err := s.tickets.Recover(ctx)
		if err != nil {
			o.logger.WarnContext(ctx, "ticket recovery incomplete", "recovered", n, "error", err)
		} else if n > 0 {
			o.logger.InfoContext(ctx, "tickets recovered", "count", n)
		}
	}
	s.tickets.Start()
	return s, nil
}

// Query resolves expressionID and runs QueryFile on its matrix.
func (s *Service) Query(ctx context.Context, expressionID string, spec model.FilterSpec, format model.Format) (*Ticket, error) {
	if s.opts.resolver == nil {
		return nil, fmt.Errorf("%w: expression %q: no resolver configured", ErrNotFound, expressionID)
	}
	path, err := s.opts.resolver.ResolveExpression(ctx, expressionID)
	if err != nil {
		return nil, translateError(err)
	}
	return s.QueryFile(ctx, path, spec, format)
}

// QueryFile materializes spec against the matrix stored under path and
// returns a download ticket. An identical request against the same matrix
// returns the existing ticket without re-encoding.
//
// Unknown IDs, invalid filters and impossible unit conversions fail before
// any artifact is created.
func (s *Service) QueryFile(ctx context.Context, path string, spec model.FilterSpec, format model.Format) (t *Ticket, err error) {
	start := time.Now()
	var cached bool
	defer func() {
		s.opts.metricsCollector.RecordQuery(format, cached, time.Since(start), err)
		s.opts.logger.LogQuery(ctx, path, format, cached, time.Since(start), err)
	}()

	if !format.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err := query.Validate(spec); err != nil {
		return nil, translateError(err)
	}

	h, err := s.acquire(ctx, path)
	if err != nil {
		return nil, translateError(err)
	}
	identity := h.file.Identity()
	fp := ticket.Fingerprint(identity, spec, format)

	if a, ok := s.tickets.Lookup(fp); ok {
		s.release(h)
		cached = true
		return newTicket(a, true), nil
	}

	_, err = query.Run(ctx, h.file, spec)
	s.release(h)
	if err != nil {
		return nil, translateError(err)
	}

	req := ticket.Request{Fingerprint: fp, Source: path, Format: format}
	a, hit, err := s.tickets.Request(ctx, req, s.build(path, identity, spec, format))
	if err != nil {
		return nil, translateBuildError(err)
	}
	cached = hit

	t = newTicket(a, hit)
	if !hit {
		s.opts.metricsCollector.RecordTicket(format, a.Size)
		s.opts.logger.LogTicket(ctx, t)
	}
	return t, nil
}

// build returns the payload writer of one artifact. It opens its own
// reference to the matrix since it may outlive the requesting call.
func (s *Service) build(path, identity string, spec model.FilterSpec, format model.Format) ticket.BuildFunc {
	return func(ctx context.Context, w io.Writer) error {
		h, err := s.acquire(ctx, path)
		if err != nil {
			return err
		}
		defer s.release(h)

		if h.file.Identity() != identity {
			return fmt.Errorf("%w: matrix %s was replaced", ErrNotFound, path)
		}

		start := time.Now()
		res, err := query.Run(ctx, h.file, spec)
		if err != nil {
			return err
		}
		stats, err := encoding.Encode(ctx, w, res, format, encoding.WithPrecision(s.opts.precision))
		s.opts.metricsCollector.RecordEncode(format, stats.Rows, stats.Bytes, time.Since(start), err)
		return err
	}
}

// Download opens the payload of a ticket.
func (s *Service) Download(ctx context.Context, ticketID string) (*Download, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	d, err := s.tickets.Retrieve(ctx, ticketID)
	s.opts.metricsCollector.RecordDownload(time.Since(start), err)
	s.opts.logger.LogDownload(ctx, ticketID, err)
	if err != nil {
		return nil, translateError(err)
	}
	return &Download{Ticket: *newTicket(d.Artifact, false), Body: d.Body}, nil
}

// Invalidate drops the cached handle of the matrix at path and every ticket
// built from it. Call it after replacing a matrix file.
func (s *Service) Invalidate(ctx context.Context, path string) error {
	s.evict(path)
	n, err := s.tickets.Invalidate(ctx, path)
	s.opts.logger.LogInvalidate(ctx, path, n, err)
	return translateError(err)
}

// Sweep removes expired tickets and their payloads.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	n, err := s.tickets.Sweep(ctx)
	s.opts.metricsCollector.RecordSweep(n, err)
	s.opts.logger.LogSweep(ctx, n, err)
	return n, translateError(err)
}

// Close stops background work, cancels running builds and closes every
// open matrix. A matrix still read by a build closes when that build
// returns. Artifact payloads stay in the store.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var idle []*handle
	for _, h := range s.handles {
		h.evicted = true
		if h.refs == 0 {
			idle = append(idle, h)
		}
	}
	s.handles = nil
	s.mu.Unlock()

	errs := []error{s.tickets.Close()}
	for _, h := range idle {
		errs = append(errs, h.file.Close())
	}
	if s.blockCache != nil {
		errs = append(errs, s.blockCache.Close())
	}
	return errors.Join(errs...)
}

func (s *Service) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Service) fileOptions(path string) []matrix.Option {
	opts := []matrix.Option{
		matrix.WithName(path),
		matrix.WithVerifyChecksum(s.opts.verifyChecksums),
	}
	if s.blockCache != nil {
		opts = append(opts, matrix.WithBlockCache(s.blockCache))
	}
	return opts
}

// acquire returns a referenced handle for path, opening the matrix on first
// use. Concurrent first uses share one open.
func (s *Service) acquire(ctx context.Context, path string) (*handle, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if h, ok := s.handles[path]; ok {
			h.refs++
			s.mu.Unlock()
			return h, nil
		}
		s.mu.Unlock()

		v, err, _ := s.opening.Do(path, func() (any, error) {
			return s.open(context.WithoutCancel(ctx), path)
		})
		if err != nil {
			return nil, err
		}

		h := v.(*handle)
		s.mu.Lock()
		if !h.evicted && !s.closed {
			h.refs++
			s.mu.Unlock()
			return h, nil
		}
		s.mu.Unlock()
		// Invalidated between open and use; start over.
	}
}

func (s *Service) open(ctx context.Context, path string) (*handle, error) {
	s.mu.Lock()
	if h, ok := s.handles[path]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	f, err := matrix.OpenStore(ctx, s.matrices, path, s.fileOptions(path)...)
	if err != nil {
		return nil, fmt.Errorf("open matrix %s: %w", path, err)
	}
	h := &handle{path: path, file: f}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = f.Close()
		return nil, ErrClosed
	}
	s.handles[path] = h
	return h, nil
}

func (s *Service) release(h *handle) {
	s.mu.Lock()
	h.refs--
	closeNow := h.evicted && h.refs == 0
	s.mu.Unlock()
	if closeNow {
		_ = h.file.Close()
	}
}

// evict removes the handle of path. The file closes once the last
// reference is released.
func (s *Service) evict(path string) {
	s.mu.Lock()
	h, ok := s.handles[path]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.handles, path)
	h.evicted = true
	closeNow := h.refs == 0
	s.mu.Unlock()
	if closeNow {
		_ = h.file.Close()
	}
}
