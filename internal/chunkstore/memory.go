package chunkstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/pkg/sets"
)

// InMemoryStore is the in-process Chunk Store variant. Safe for
// concurrent use; every mutation holds mu for the duration of the index
// update, per spec §5's shared-resource policy.
type InMemoryStore struct {
	mu sync.RWMutex

	byID       map[string]*types.ChunkMetadata
	byArtifact map[string]sets.Set[string]
	byPatient  map[string]sets.Set[string]
	byDate     map[string]sets.Set[string]
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:       map[string]*types.ChunkMetadata{},
		byArtifact: map[string]sets.Set[string]{},
		byPatient:  map[string]sets.Set[string]{},
		byDate:     map[string]sets.Set[string]{},
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Store(_ context.Context, chunks []*types.ChunkMetadata) (StoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := StoreResult{Errors: map[string]error{}}
	for _, c := range chunks {
		if c.CharOffsets.Start < 0 || c.CharOffsets.Start >= c.CharOffsets.End {
			result.Errors[c.ChunkID] = invalidOffsetsError(c)
			continue
		}
		// chunk_id is derived deterministically from (artifact_id, offsets);
		// an existing ID is therefore a full duplicate, not an update.
		if _, exists := s.byID[c.ChunkID]; exists {
			result.Skipped++
			continue
		}
		s.byID[c.ChunkID] = c
		s.addToIndexesLocked(c)
		result.Stored++
	}
	return result, nil
}

func invalidOffsetsError(c *types.ChunkMetadata) error {
	return fmt.Errorf("chunk %s: invalid offsets [%d,%d)", c.ChunkID, c.CharOffsets.Start, c.CharOffsets.End)
}

func (s *InMemoryStore) addToIndexesLocked(c *types.ChunkMetadata) {
	addToSetIndex(s.byArtifact, c.ArtifactID, c.ChunkID)
	addToSetIndex(s.byPatient, c.PatientID, c.ChunkID)
	addToSetIndex(s.byDate, dateKey(c.OccurredAt), c.ChunkID)
}

func (s *InMemoryStore) removeFromIndexesLocked(c *types.ChunkMetadata) {
	removeFromSetIndex(s.byArtifact, c.ArtifactID, c.ChunkID)
	removeFromSetIndex(s.byPatient, c.PatientID, c.ChunkID)
	removeFromSetIndex(s.byDate, dateKey(c.OccurredAt), c.ChunkID)
}

func addToSetIndex(index map[string]sets.Set[string], key, chunkID string) {
	if key == "" {
		return
	}
	if index[key] == nil {
		index[key] = sets.NewHashSet[string]()
	}
	index[key].Add(chunkID)
}

func removeFromSetIndex(index map[string]sets.Set[string], key, chunkID string) {
	if s, ok := index[key]; ok {
		s.Remove(chunkID)
		if s.IsEmpty() {
			delete(index, key)
		}
	}
}

func (s *InMemoryStore) Retrieve(_ context.Context, chunkID string) (*types.ChunkMetadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[chunkID]
	return c, ok, nil
}

// Query implements spec §4.4's AND-combined predicate filter, sorted by
// occurred_at desc then chunk_id asc, with limit/offset pagination.
func (s *InMemoryStore) Query(_ context.Context, filter Filter) ([]*types.ChunkMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := s.candidateIDsLocked(filter)

	matched := make([]*types.ChunkMetadata, 0, len(candidates))
	for id := range candidates {
		c := s.byID[id]
		if c != nil && matchesFilter(c, filter) {
			matched = append(matched, c)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].ChunkID < matched[j].ChunkID
	})

	return paginate(matched, filter.Limit, filter.Offset), nil
}

// candidateIDsLocked narrows the full chunk set using the patient and
// artifact secondary indexes when the filter names them (the date index is
// not consulted), before falling back to a full scan for the remaining
// predicates.
func (s *InMemoryStore) candidateIDsLocked(filter Filter) map[string]struct{} {
	var narrowed sets.Set[string]
	intersectWith := func(index map[string]sets.Set[string], key string) {
		if key == "" {
			return
		}
		ids, ok := index[key]
		if !ok {
			narrowed = sets.NewHashSet[string]()
			return
		}
		if narrowed == nil {
			narrowed = ids.Clone()
			return
		}
		narrowed.RetainAll(ids.ToSlice()...)
	}

	intersectWith(s.byPatient, filter.PatientID)
	intersectWith(s.byArtifact, filter.ArtifactID)

	out := map[string]struct{}{}
	if narrowed != nil {
		for id := range narrowed.Iter() {
			out[id] = struct{}{}
		}
		return out
	}
	for id := range s.byID {
		out[id] = struct{}{}
	}
	return out
}

func paginate(matched []*types.ChunkMetadata, limit, offset int) []*types.ChunkMetadata {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

func (s *InMemoryStore) DeleteByArtifact(_ context.Context, artifactID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.byArtifact[artifactID]
	if !ok {
		return 0, nil
	}
	count := 0
	for id := range ids.Iter() {
		c := s.byID[id]
		if c == nil {
			continue
		}
		s.removeFromIndexesLocked(c)
		delete(s.byID, id)
		count++
	}
	return count, nil
}

func (s *InMemoryStore) DeleteByPatient(_ context.Context, patientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.byPatient[patientID]
	if !ok {
		return 0, nil
	}
	count := 0
	for id := range ids.Iter() {
		c := s.byID[id]
		if c == nil {
			continue
		}
		s.removeFromIndexesLocked(c)
		delete(s.byID, id)
		count++
	}
	return count, nil
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = map[string]*types.ChunkMetadata{}
	s.byArtifact = map[string]sets.Set[string]{}
	s.byPatient = map[string]sets.Set[string]{}
	s.byDate = map[string]sets.Set[string]{}
	return nil
}

func (s *InMemoryStore) GarbageCollect(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, c := range s.byID {
		if c.OccurredAt.Before(cutoff) {
			s.removeFromIndexesLocked(c)
			delete(s.byID, id)
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) GetStatistics(_ context.Context) (Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{CountsByType: map[types.ArtifactType]int{}}
	artifacts := sets.NewHashSet[string]()
	for _, c := range s.byID {
		stats.CountsByType[c.ArtifactType]++
		artifacts.Add(c.ArtifactID)
		if stats.OldestDate == nil || c.OccurredAt.Before(*stats.OldestDate) {
			t := c.OccurredAt
			stats.OldestDate = &t
		}
		if stats.NewestDate == nil || c.OccurredAt.After(*stats.NewestDate) {
			t := c.OccurredAt
			stats.NewestDate = &t
		}
	}
	stats.PatientCount = len(s.byPatient)
	stats.ArtifactCount = artifacts.Size()
	return stats, nil
}
