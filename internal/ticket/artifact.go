package ticket

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/rnaget/model"
)

// State is the lifecycle state of an artifact.
type State uint8

const (
	StatePending State = iota
	StateReady
	StateExpired
	StateFailed
)

var stateNames = [...]string{
	StatePending: "pending",
	StateReady:   "ready",
	StateExpired: "expired",
	StateFailed:  "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// ParseState parses a state name.
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown ticket state %q", s)
}

// CompressionZstd marks payloads stored as a zstd frame.
const CompressionZstd = "zstd"

// Artifact describes one materialized result.
type Artifact struct {
	TicketID    string
	Fingerprint string
	// Source identifies the matrix the artifact was built from.
	Source      string
	Format      model.Format
	ContentType string
	// PayloadKey is the blob name of the stored payload.
	PayloadKey string
	// Size is the stored payload size; RawSize the size after decompression.
	Size        int64
	RawSize     int64
	Compression string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	State       State
}

// Expired reports whether the artifact is past its expiry at now.
func (a *Artifact) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Request identifies the artifact a caller wants.
type Request struct {
	Fingerprint string
	Source      string
	Format      model.Format
}

// BuildFunc writes the payload of a new artifact to w.
type BuildFunc func(ctx context.Context, w io.Writer) error

// Download is an open artifact payload. Body must be closed.
type Download struct {
	Artifact Artifact
	Body     io.ReadCloser
}

// Ledger durably records Ready artifacts.
type Ledger interface {
	Save(ctx context.Context, a Artifact) error
	Delete(ctx context.Context, ticketID string) error
	Load(ctx context.Context) ([]Artifact, error)
}
