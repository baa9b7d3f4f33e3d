package api

import (
	"context"
	"sync"
	"time"

	"airquality-service/models"
)

// RankingStore keeps the latest ranking and a short history of previous ones
type RankingStore struct {
	latest        *models.RankingResult
	history       map[string]models.RankingResult // key is ranking ID
	order         []string                        // IDs, oldest first
	maxHistory    int
	lastFailure   string
	lastFailureAt time.Time
	mutex         sync.RWMutex
}

// NewRankingStore creates a new in-memory ranking store
func NewRankingStore(maxHistory int) *RankingStore {
	if maxHistory < 1 {
		maxHistory = 1
	}
	return &RankingStore{
		history:    make(map[string]models.RankingResult),
		maxHistory: maxHistory,
	}
}

// Publish stores a completed ranking; it lets the store sit beside the other publishers
func (s *RankingStore) Publish(_ context.Context, result models.RankingResult) error {
	s.UpdateRanking(result)
	return nil
}

// UpdateRanking makes result the latest ranking and clears any recorded failure
func (s *RankingStore) UpdateRanking(result models.RankingResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.latest = &result
	s.lastFailure = ""
	s.lastFailureAt = time.Time{}

	if _, exists := s.history[result.ID]; !exists {
		s.order = append(s.order, result.ID)
	}
	s.history[result.ID] = result

	// Drop the oldest entries beyond the limit
	for len(s.order) > s.maxHistory {
		delete(s.history, s.order[0])
		s.order = s.order[1:]
	}
}

// RecordFailure remembers a refresh that failed as a whole. The previous
// ranking, if any, stays available.
func (s *RankingStore) RecordFailure(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastFailure = err.Error()
	s.lastFailureAt = time.Now()
}

// Latest returns the most recent ranking
func (s *RankingStore) Latest() (models.RankingResult, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.latest == nil {
		return models.RankingResult{}, false
	}
	return *s.latest, true
}

// GetRanking retrieves a stored ranking by ID
func (s *RankingStore) GetRanking(id string) (models.RankingResult, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	result, exists := s.history[id]
	return result, exists
}

// LastFailure returns the message of the last failed refresh, empty if the
// last refresh succeeded
func (s *RankingStore) LastFailure() (string, time.Time) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastFailure, s.lastFailureAt
}

// PruneOldRankings removes history entries completed more than maxAge ago.
// The latest ranking is always kept.
func (s *RankingStore) PruneOldRankings(maxAge time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	prunedCount := 0

	kept := s.order[:0]
	for _, id := range s.order {
		result := s.history[id]
		if result.CompletedAt.Before(cutoff) && (s.latest == nil || s.latest.ID != id) {
			delete(s.history, id)
			prunedCount++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	return prunedCount
}
