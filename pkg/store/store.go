// Package store holds per-file revision texts for the text-merge planner.
// Texts are keyed by (file id, revision id) and kept zstd-compressed in
// memory; the per-file revision graph rides along so planners can ask for
// ancestry without a round trip to the main history store.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/breezy-team/gomerge/pkg/graph"
	"github.com/breezy-team/gomerge/pkg/object"
)

// ErrRevisionNotPresent reports a (file, revision) pair with no stored text.
var ErrRevisionNotPresent = errors.New("revision text not present in store")

type textKey struct {
	file object.FileID
	rev  object.RevisionID
}

// TextStore is an in-memory content store for per-file texts.
type TextStore struct {
	texts   map[textKey][]byte // zstd-compressed line blocks
	parents map[object.FileID]graph.MapParents

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewTextStore returns an empty store.
func NewTextStore() *TextStore {
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &TextStore{
		texts:   make(map[textKey][]byte),
		parents: make(map[object.FileID]graph.MapParents),
		enc:     enc,
		dec:     dec,
	}
}

// AddVersion records the text of file at rev together with its parents in
// the per-file graph. Parents must already be interpretable keys of the
// same file's graph (or NullRevision).
func (s *TextStore) AddVersion(file object.FileID, rev object.RevisionID, parents []object.RevisionID, lines []string) {
	data := []byte(strings.Join(lines, "\x00"))
	s.texts[textKey{file, rev}] = s.enc.EncodeAll(data, nil)
	pm, ok := s.parents[file]
	if !ok {
		pm = make(graph.MapParents)
		s.parents[file] = pm
	}
	pm[rev] = append([]object.RevisionID(nil), parents...)
}

// HasVersion reports whether the store holds a text for (file, rev).
func (s *TextStore) HasVersion(file object.FileID, rev object.RevisionID) bool {
	_, ok := s.texts[textKey{file, rev}]
	return ok
}

// Lines returns the text of file at rev as terminator-free lines.
func (s *TextStore) Lines(file object.FileID, rev object.RevisionID) ([]string, error) {
	blob, ok := s.texts[textKey{file, rev}]
	if !ok {
		return nil, fmt.Errorf("store: %s@%s: %w", file, rev, ErrRevisionNotPresent)
	}
	data, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("store: decompress %s@%s: %w", file, rev, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return strings.Split(string(data), "\x00"), nil
}

// FileGraph returns the per-file revision graph for file. The returned
// map is live store state; callers must copy before mutating.
func (s *TextStore) FileGraph(file object.FileID) graph.MapParents {
	pm, ok := s.parents[file]
	if !ok {
		return graph.MapParents{}
	}
	return pm
}
