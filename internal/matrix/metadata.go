package matrix

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/hupe1980/rnaget/codec"
)

// Metadata is the descriptive document stored with a matrix.
type Metadata struct {
	// Study is free text naming the study the matrix belongs to.
	Study string `json:"study,omitempty"`
	// Source names the ingest source type (e.g. "kallisto").
	Source string `json:"source,omitempty"`
	// Version is a caller-defined dataset version.
	Version string `json:"version,omitempty"`
	// Created is the time the file was sealed.
	Created time.Time `json:"created"`
	// Attributes holds any further key/value annotations.
	Attributes map[string]string `json:"attributes,omitempty"`
}

func encodeMetadata(c codec.Codec, md Metadata) ([]byte, error) {
	doc, err := c.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("matrix: encode metadata: %w", err)
	}
	name := c.Name()
	out := binary.AppendUvarint(make([]byte, 0, len(name)+len(doc)+2), uint64(len(name)))
	out = append(out, name...)
	return append(out, doc...), nil
}

func decodeMetadata(src []byte) (Metadata, string, error) {
	var md Metadata
	if len(src) == 0 {
		return md, "", nil
	}
	n, k := binary.Uvarint(src)
	if k <= 0 || n > uint64(len(src)-k) {
		return md, "", fmt.Errorf("%w: truncated metadata", ErrCorrupt)
	}
	name := string(src[k : k+int(n)])
	c, ok := codec.ByName(name)
	if !ok {
		return md, "", fmt.Errorf("%w: unknown metadata codec %q", ErrCorrupt, name)
	}
	if err := c.Unmarshal(src[k+int(n):], &md); err != nil {
		return md, "", fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
	}
	return md, name, nil
}
