package ticket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/rnaget/blobstore"
	"github.com/hupe1980/rnaget/internal/encoding"
	"github.com/hupe1980/rnaget/internal/resource"
)

var (
	// ErrTicketNotFound is returned for unknown (or swept) ticket IDs.
	ErrTicketNotFound = errors.New("ticket: not found")
	// ErrTicketExpired is returned for tickets past their expiry that have not
	// been swept yet.
	ErrTicketExpired = errors.New("ticket: expired")
	// ErrInvalidRequest is returned for requests without fingerprint or with
	// an unknown format.
	ErrInvalidRequest = errors.New("ticket: invalid request")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("ticket: manager closed")
)

// Manager owns the artifact table.
//
// Ready lookups take only the read lock. Builds run outside any lock; the
// single-flight group guarantees one build per fingerprint.
type Manager struct {
	store blobstore.BlobStore
	opts  Options

	mu            sync.RWMutex
	byFingerprint map[string]*Artifact
	byID          map[string]*Artifact
	closed        bool

	group singleflight.Group
	seq   atomic.Uint64

	// ctx is cancelled by Close; running builds observe it.
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates a manager that stores payloads in store.
func NewManager(store blobstore.BlobStore, opts ...Option) *Manager {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:         store,
		opts:          o,
		byFingerprint: make(map[string]*Artifact),
		byID:          make(map[string]*Artifact),
		ctx:           ctx,
		cancel:        cancel,
		closeCh:       make(chan struct{}),
	}
}

type buildResult struct {
	art   Artifact
	// owner is the sequence number of the Request that ran the build;
	// zero when the artifact was found instead.
	owner uint64
}

// Request returns the Ready artifact for req.Fingerprint, building it with
// build when none exists. cached is false only for the one call whose build
// produced the artifact; callers that joined an in-flight build or found a
// Ready artifact get cached=true.
//
// The build is detached from ctx: when ctx ends the caller gets ctx.Err()
// while the build continues for the remaining waiters. Close cancels
// running builds.
func (m *Manager) Request(ctx context.Context, req Request, build BuildFunc) (art Artifact, cached bool, err error) {
	if req.Fingerprint == "" || !req.Format.Valid() {
		return Artifact{}, false, fmt.Errorf("%w: fingerprint %q, format %q", ErrInvalidRequest, req.Fingerprint, req.Format)
	}
	if err := m.checkOpen(); err != nil {
		return Artifact{}, false, err
	}
	if a, ok := m.lookup(ctx, req.Fingerprint); ok {
		return a, true, nil
	}

	self := m.seq.Add(1)
	ch := m.group.DoChan(req.Fingerprint, func() (any, error) {
		bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(m.ctx, cancel)
		defer stop()

		if a, ok := m.lookup(bctx, req.Fingerprint); ok {
			return buildResult{art: a}, nil
		}
		a, err := m.build(bctx, req, build)
		if err != nil {
			if m.ctx.Err() != nil && !errors.Is(err, ErrClosed) {
				return nil, fmt.Errorf("%w: %w", ErrClosed, err)
			}
			return nil, err
		}
		return buildResult{art: a, owner: self}, nil
	})

	select {
	case <-ctx.Done():
		return Artifact{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Artifact{}, false, res.Err
		}
		br := res.Val.(buildResult)
		return br.art, br.owner != self, nil
	}
}

// Lookup returns the Ready, unexpired artifact for fingerprint.
func (m *Manager) Lookup(fingerprint string) (Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byFingerprint[fingerprint]
	if !ok || a.Expired(m.opts.Clock()) {
		return Artifact{}, false
	}
	return *a, true
}

// lookup is Lookup that also drops an expired entry it runs into.
func (m *Manager) lookup(ctx context.Context, fingerprint string) (Artifact, bool) {
	if a, ok := m.Lookup(fingerprint); ok {
		return a, true
	}

	m.mu.Lock()
	a, ok := m.byFingerprint[fingerprint]
	if !ok || !a.Expired(m.opts.Clock()) {
		m.mu.Unlock()
		return Artifact{}, false
	}
	m.removeLocked(a)
	m.mu.Unlock()

	_ = m.purge(ctx, []Artifact{*a})
	return Artifact{}, false
}

func (m *Manager) payloadKey(id string, ext string) string {
	key := m.opts.Prefix + id + "." + ext
	if m.opts.Compress {
		key += ".zst"
	}
	return key
}

func (m *Manager) build(ctx context.Context, req Request, build BuildFunc) (Artifact, error) {
	if err := m.opts.Resources.AcquireBuild(ctx); err != nil {
		return Artifact{}, err
	}
	defer m.opts.Resources.ReleaseBuild()

	start := m.opts.Clock()
	a := Artifact{
		TicketID:    m.opts.NewID(),
		Fingerprint: req.Fingerprint,
		Source:      req.Source,
		Format:      req.Format,
		ContentType: encoding.ContentType(req.Format),
		State:       StatePending,
	}
	a.PayloadKey = m.payloadKey(a.TicketID, encoding.Extension(req.Format))
	if m.opts.Compress {
		a.Compression = CompressionZstd
	}

	size, raw, err := m.writePayload(ctx, a.PayloadKey, build)
	if err != nil {
		a.State = StateFailed
		m.opts.Logger.LogAttrs(ctx, slog.LevelWarn, "artifact build failed",
			slog.String("fingerprint", a.Fingerprint),
			slog.String("source", a.Source),
			slog.String("state", a.State.String()),
			slog.Any("error", err),
		)
		return Artifact{}, err
	}

	a.Size, a.RawSize = size, raw
	a.CreatedAt = m.opts.Clock()
	a.ExpiresAt = a.CreatedAt.Add(m.opts.TTL)
	a.State = StateReady

	if m.opts.Ledger != nil {
		if err := m.opts.Ledger.Save(ctx, a); err != nil {
			_ = m.store.Delete(context.WithoutCancel(ctx), a.PayloadKey)
			return Artifact{}, fmt.Errorf("record ticket: %w", err)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = m.purge(context.WithoutCancel(ctx), []Artifact{a})
		return Artifact{}, ErrClosed
	}
	m.byFingerprint[a.Fingerprint] = &a
	m.byID[a.TicketID] = &a
	m.mu.Unlock()

	m.opts.Logger.LogAttrs(ctx, slog.LevelDebug, "artifact ready",
		slog.String("ticket", a.TicketID),
		slog.String("fingerprint", a.Fingerprint),
		slog.Int64("bytes", a.Size),
		slog.Duration("elapsed", a.CreatedAt.Sub(start)),
	)
	return a, nil
}

// writePayload runs build into a new blob. It returns the stored and the
// uncompressed payload size.
func (m *Manager) writePayload(ctx context.Context, key string, build BuildFunc) (stored, raw int64, err error) {
	wb, err := m.store.Create(ctx, key)
	if err != nil {
		return 0, 0, fmt.Errorf("create payload: %w", err)
	}
	defer func() {
		if err != nil {
			_ = wb.Abort()
		}
	}()

	out := &countingWriter{w: resource.NewRateLimitedWriter(ctx, wb, m.opts.Resources)}
	in := &countingWriter{w: out}

	var zw *zstd.Encoder
	if m.opts.Compress {
		if zw, err = zstd.NewWriter(out); err != nil {
			return 0, 0, err
		}
		in.w = zw
	}

	if err = build(ctx, in); err != nil {
		if zw != nil {
			_ = zw.Close()
		}
		return 0, 0, err
	}
	if zw != nil {
		if err = zw.Close(); err != nil {
			return 0, 0, fmt.Errorf("compress payload: %w", err)
		}
	}
	if err = wb.Close(); err != nil {
		return 0, 0, fmt.Errorf("commit payload: %w", err)
	}
	return out.n, in.n, nil
}

// Retrieve opens the payload of ticketID.
func (m *Manager) Retrieve(ctx context.Context, ticketID string) (*Download, error) {
	m.mu.RLock()
	a, ok := m.byID[ticketID]
	var art Artifact
	if ok {
		art = *a
	}
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}
	if art.Expired(m.opts.Clock()) {
		return nil, fmt.Errorf("%w: %s", ErrTicketExpired, ticketID)
	}

	blob, err := m.store.Open(ctx, art.PayloadKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			m.drop(ctx, art)
			return nil, fmt.Errorf("%w: %s: payload missing", ErrTicketNotFound, ticketID)
		}
		return nil, fmt.Errorf("open payload: %w", err)
	}

	body, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("read payload: %w", err)
	}
	closers := []io.Closer{body, blob}

	var r io.Reader = body
	if art.Compression == CompressionZstd {
		dec, err := zstd.NewReader(body)
		if err != nil {
			_ = body.Close()
			_ = blob.Close()
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		rc := dec.IOReadCloser()
		r = rc
		closers = append([]io.Closer{rc}, closers...)
	}

	return &Download{
		Artifact: art,
		Body:     &payloadReader{Reader: r, closers: closers},
	}, nil
}

// Sweep removes every expired artifact and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.opts.Clock()
	return m.removeWhere(ctx, func(a *Artifact) bool { return a.Expired(now) })
}

// Invalidate removes every artifact built from source.
func (m *Manager) Invalidate(ctx context.Context, source string) (int, error) {
	return m.removeWhere(ctx, func(a *Artifact) bool { return a.Source == source })
}

func (m *Manager) removeWhere(ctx context.Context, match func(*Artifact) bool) (int, error) {
	var victims []Artifact
	m.mu.Lock()
	for _, a := range m.byID {
		if match(a) {
			victims = append(victims, *a)
			m.removeLocked(a)
		}
	}
	m.mu.Unlock()

	return len(victims), m.purge(ctx, victims)
}

func (m *Manager) drop(ctx context.Context, a Artifact) {
	m.mu.Lock()
	if cur, ok := m.byID[a.TicketID]; ok {
		m.removeLocked(cur)
	}
	m.mu.Unlock()
	_ = m.purge(ctx, []Artifact{a})
}

func (m *Manager) removeLocked(a *Artifact) {
	delete(m.byID, a.TicketID)
	if cur, ok := m.byFingerprint[a.Fingerprint]; ok && cur.TicketID == a.TicketID {
		delete(m.byFingerprint, a.Fingerprint)
	}
	a.State = StateExpired
}

// purge deletes payloads and ledger rows of removed artifacts.
func (m *Manager) purge(ctx context.Context, victims []Artifact) error {
	var errs []error
	for _, a := range victims {
		if err := m.store.Delete(ctx, a.PayloadKey); err != nil {
			errs = append(errs, fmt.Errorf("delete payload %s: %w", a.PayloadKey, err))
		}
		if m.opts.Ledger != nil {
			if err := m.opts.Ledger.Delete(ctx, a.TicketID); err != nil {
				errs = append(errs, fmt.Errorf("delete ticket %s: %w", a.TicketID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Recover reloads unexpired Ready artifacts from the ledger. Expired or
// orphaned entries are purged. It returns the number of recovered tickets.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	if m.opts.Ledger == nil {
		return 0, nil
	}
	arts, err := m.opts.Ledger.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tickets: %w", err)
	}

	now := m.opts.Clock()
	var stale []Artifact
	recovered := 0
	for _, a := range arts {
		if a.State != StateReady || a.Expired(now) || !m.payloadExists(ctx, a.PayloadKey) {
			stale = append(stale, a)
			continue
		}
		m.mu.Lock()
		if cur, ok := m.byFingerprint[a.Fingerprint]; ok && !cur.Expired(now) {
			m.mu.Unlock()
			stale = append(stale, a)
			continue
		}
		m.byFingerprint[a.Fingerprint] = &a
		m.byID[a.TicketID] = &a
		m.mu.Unlock()
		recovered++
	}
	return recovered, m.purge(ctx, stale)
}

func (m *Manager) payloadExists(ctx context.Context, key string) bool {
	b, err := m.store.Open(ctx, key)
	if err != nil {
		return false
	}
	_ = b.Close()
	return true
}

// Len returns the number of tracked artifacts, expired ones included.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Start launches the background sweep. It is a no-op when the sweep
// interval is zero.
func (m *Manager) Start() {
	if m.opts.SweepInterval <= 0 {
		return
	}
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.runSweepLoop()
	})
}

func (m *Manager) runSweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.closeCh:
			return
		case <-ticker.C:
			n, err := m.Sweep(context.Background())
			if err != nil {
				m.opts.Logger.Warn("background sweep failed", slog.Any("error", err))
			} else if n > 0 {
				m.opts.Logger.Debug("background sweep", slog.Int("removed", n))
			}
		}
	}
}

func (m *Manager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close stops the background sweep and cancels running builds. It does not
// wait for builds to return. Payloads of Ready artifacts stay in the store so
// a later Recover can pick them up.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		m.cancel()
		close(m.closeCh)
	})
	m.wg.Wait()
	return nil
}

type payloadReader struct {
	io.Reader
	closers []io.Closer
}

func (r *payloadReader) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
