package service

import (
	"context"
	"time"

	"github.com/prismkeys/prism/internal/model"
)

// StatsService computes the dashboard summary.
type StatsService struct {
	keys interface {
		ListAllKeys(ctx context.Context) ([]model.Key, error)
	}
	now func() time.Time
	loc *time.Location
}

// NewStatsService creates a StatsService. "Today" starts at midnight in loc
// (time.Local when nil).
func NewStatsService(keys KeyStore, now func() time.Time, loc *time.Location) *StatsService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &StatsService{keys: keys, now: now, loc: loc}
}

// Stats returns totals, currently usable keys, distinct owners issued a key
// since midnight and the usable share of all keys as a percentage (100 when
// there are none).
func (s *StatsService) Stats(ctx context.Context) (*model.Stats, error) {
	keys, err := s.keys.ListAllKeys(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list keys", Err: err}
	}

	now := s.now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	st := &model.Stats{TotalKeys: len(keys)}
	owners := make(map[string]struct{})
	for _, k := range keys {
		if k.UsableAt(now) {
			st.ActiveKeys++
		}
		if !k.CreatedAt.Before(midnight) {
			owners[k.OwnerID] = struct{}{}
		}
	}
	st.UsersToday = len(owners)

	st.SuccessRate = 100
	if st.TotalKeys > 0 {
		st.SuccessRate = float64(st.ActiveKeys) / float64(st.TotalKeys) * 100
	}
	return st, nil
}
