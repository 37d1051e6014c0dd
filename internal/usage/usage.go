package usage

import (
	"fmt"
	"sync"
	"time"
)

const (
	dayStampLayout   = "2006-01-02"
	monthStampLayout = "2006-01"
)

// Record holds the consumption counters for a single user. The stamps
// name the calendar day/month in which the counters were last valid;
// any access reconciles them against the current clock first.
type Record struct {
	DailyMessageCount   int    `json:"daily_message_count"`
	MonthlyMessageCount int    `json:"monthly_message_count"`
	TokensToday         int    `json:"tokens_today"`
	TokensThisMonth     int    `json:"tokens_this_month"`
	LastDayStamp        string `json:"last_day_stamp"`
	LastMonthStamp      string `json:"last_month_stamp"`
}

// Limits is the process-wide quota configuration, set once at startup.
type Limits struct {
	DailyMessages   int
	MonthlyMessages int
	MonthlyTokens   int
}

// Repository abstracts the persisted backing of the usage store.
// The document is read in full and written in full; implementations
// must round-trip every Record field exactly.
type Repository interface {
	Load() (map[int64]Record, error)
	Save(records map[int64]Record) error
}

// Store is the single source of truth for per-user consumption.
// Counters roll over automatically at calendar day/month boundaries,
// and every mutation is persisted through the repository immediately.
type Store struct {
	repo   Repository
	limits Limits
	now    func() time.Time

	mu      sync.Mutex
	records map[int64]Record
}

func NewStore(repo Repository, limits Limits) (*Store, error) {
	records, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("load usage records: %w", err)
	}
	if records == nil {
		records = make(map[int64]Record)
	}
	return &Store{repo: repo, limits: limits, now: time.Now, records: records}, nil
}

func (s *Store) Limits() Limits { return s.limits }

// CheckAdmission reports whether the user still has headroom under all
// three limits. Reconciliation may create or reset the record even when
// the caller never registers usage afterwards; such changes are
// persisted so the stored state reflects the passage of time.
func (s *Store) CheckAdmission(userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, changed := s.reconcile(userID)
	if changed {
		if err := s.repo.Save(s.records); err != nil {
			return false, fmt.Errorf("persist usage store: %w", err)
		}
	}

	if rec.DailyMessageCount >= s.limits.DailyMessages {
		return false, nil
	}
	if rec.MonthlyMessageCount >= s.limits.MonthlyMessages {
		return false, nil
	}
	if rec.TokensThisMonth >= s.limits.MonthlyTokens {
		return false, nil
	}
	return true, nil
}

// RegisterUsage counts one message and the tokens it consumed against
// the user's windows and persists the whole store.
func (s *Store) RegisterUsage(userID int64, tokensConsumed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.reconcile(userID)
	rec.DailyMessageCount++
	rec.MonthlyMessageCount++
	rec.TokensToday += tokensConsumed
	rec.TokensThisMonth += tokensConsumed
	s.records[userID] = rec

	if err := s.repo.Save(s.records); err != nil {
		return fmt.Errorf("persist usage store: %w", err)
	}
	return nil
}

// Current returns the user's reconciled record.
func (s *Store) Current(userID int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, changed := s.reconcile(userID)
	if changed {
		if err := s.repo.Save(s.records); err != nil {
			return Record{}, fmt.Errorf("persist usage store: %w", err)
		}
	}
	return rec, nil
}

// Snapshot returns a copy of all records for read-only consumers.
func (s *Store) Snapshot() map[int64]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out
}

// reconcile rolls stale windows of the user's record over to the
// current calendar day and month. The two resets are independent:
// a month rollover does not skip the day check and vice versa.
// Caller must hold s.mu.
func (s *Store) reconcile(userID int64) (Record, bool) {
	now := s.now()
	day := now.Format(dayStampLayout)
	month := now.Format(monthStampLayout)

	rec, ok := s.records[userID]
	changed := !ok
	if !ok {
		rec = Record{LastDayStamp: day, LastMonthStamp: month}
	}
	if rec.LastDayStamp != day {
		rec.DailyMessageCount = 0
		rec.TokensToday = 0
		rec.LastDayStamp = day
		changed = true
	}
	if rec.LastMonthStamp != month {
		rec.MonthlyMessageCount = 0
		rec.TokensThisMonth = 0
		rec.LastMonthStamp = month
		changed = true
	}
	if changed {
		s.records[userID] = rec
	}
	return rec, changed
}
