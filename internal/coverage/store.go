package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/storage"
)

// Store persists per-book coverage metadata as a single JSON file
// ({asin}/coverage.json) under the data directory. Writes go through the
// artifact store's temp+rename path so readers never see a partial file.
//
// Store also owns the per-book mutexes that serialize pipeline runs and
// metadata read-modify-write cycles for the same book.
type Store struct {
	data *storage.LocalStore
	log  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a coverage store backed by the given artifact store.
func NewStore(data *storage.LocalStore, log zerolog.Logger) *Store {
	return &Store{
		data:  data,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the per-book mutex and returns the unlock function.
// Callers must hold the lock across resolve-or-fetch decisions and the
// metadata write-back, so at most one pipeline run is in flight per book.
func (s *Store) Lock(asin string) func() {
	s.mu.Lock()
	m, ok := s.locks[asin]
	if !ok {
		m = &sync.Mutex{}
		s.locks[asin] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func coverageKey(asin string) string {
	return asin + "/coverage.json"
}

// Load reads a book's coverage metadata. A missing or malformed file is
// treated as empty coverage, forcing a fresh fetch rather than failing the
// request.
func (s *Store) Load(asin string) *BookCoverage {
	raw, err := s.data.Load(coverageKey(asin))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("asin", asin).Msg("coverage file unreadable, treating as empty")
		}
		return &BookCoverage{ASIN: asin}
	}

	var cov BookCoverage
	if err := json.Unmarshal(raw, &cov); err != nil {
		s.log.Warn().Err(err).Str("asin", asin).Msg("coverage file malformed, treating as empty")
		return &BookCoverage{ASIN: asin}
	}
	if cov.ASIN == "" {
		cov.ASIN = asin
	}
	return &cov
}

// Save writes a book's coverage metadata atomically, keeping ranges ordered
// by start position.
func (s *Store) Save(cov *BookCoverage) error {
	sort.SliceStable(cov.Ranges, func(i, j int) bool {
		return cov.Ranges[i].StartPositionID < cov.Ranges[j].StartPositionID
	})
	cov.UpdatedAt = time.Now().UTC()

	raw, err := json.MarshalIndent(cov, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal coverage: %w", err)
	}
	if err := s.data.Save(coverageKey(cov.ASIN), raw); err != nil {
		return fmt.Errorf("save coverage: %w", err)
	}
	return nil
}

// UpsertRange adds a range to the coverage, or returns the existing one when
// a range with the same position span was already recorded.
func (s *Store) UpsertRange(cov *BookCoverage, startPos, endPos int) *CoverageRange {
	id := ChunkID(startPos, endPos)
	if existing := cov.FindRange(id); existing != nil {
		return existing
	}

	now := time.Now().UTC()
	cov.Ranges = append(cov.Ranges, CoverageRange{
		ID:              id,
		StartPositionID: startPos,
		EndPositionID:   endPos,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	return &cov.Ranges[len(cov.Ranges)-1]
}

// AppendAudio records a synthesis result on a range. An artifact with the
// same ID (same provider and sub-span) replaces the previous entry.
func (s *Store) AppendAudio(rng *CoverageRange, art AudioArtifact) {
	for i := range rng.Audio {
		if rng.Audio[i].ID == art.ID {
			rng.Audio[i] = art
			rng.UpdatedAt = time.Now().UTC()
			return
		}
	}
	rng.Audio = append(rng.Audio, art)
	rng.UpdatedAt = time.Now().UTC()
}

// DeleteAudio removes one audio artifact's files and its metadata entry.
// Sibling artifacts and the parent range's text artifacts are untouched.
func (s *Store) DeleteAudio(cov *BookCoverage, chunkID, artifactID string) error {
	rng := cov.FindRange(chunkID)
	if rng == nil {
		return fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}

	idx := -1
	for i := range rng.Audio {
		if rng.Audio[i].ID == artifactID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("artifact %s: %w", artifactID, ErrNotFound)
	}

	art := rng.Audio[idx]
	for _, key := range []string{art.AudioPath, art.AlignmentPath, art.BenchmarksPath, art.SourceTextPath} {
		if key == "" {
			continue
		}
		if err := s.data.Remove(key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	// Remove the (now empty) artifact directory; best effort.
	s.data.RemoveDir(fmt.Sprintf("%s/chunks/%s/audio/%s", cov.ASIN, chunkID, artifactID))

	rng.Audio = append(rng.Audio[:idx], rng.Audio[idx+1:]...)
	rng.UpdatedAt = time.Now().UTC()
	return s.Save(cov)
}

// DeleteRange removes a whole coverage range: its chunk directory and its
// metadata entry.
func (s *Store) DeleteRange(cov *BookCoverage, chunkID string) error {
	idx := -1
	for i := range cov.Ranges {
		if cov.Ranges[i].ID == chunkID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}

	if err := s.data.RemoveDir(fmt.Sprintf("%s/chunks/%s", cov.ASIN, chunkID)); err != nil {
		return fmt.Errorf("remove chunk dir: %w", err)
	}

	cov.Ranges = append(cov.Ranges[:idx], cov.Ranges[idx+1:]...)
	return s.Save(cov)
}
