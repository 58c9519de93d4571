// Package notifier is the pending-reminder store and delivery loop. It plays
// the role a mobile platform's local-notification center would: reminders are
// registered with a stable id and a fire time, capped at a hard ceiling, and
// delivered by a worker when they come due.
package notifier

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxPending is the hard ceiling on reminders pending at once.
const MaxPending = 64

var (
	ErrNotAuthorized = errors.New("chat has not enabled reminders")
	ErrLimitExceeded = errors.New("pending reminder limit reached")
)

// Payload is the contract between a registered reminder and the
// notification-action handlers: enough to resolve the dose log at fire time.
type Payload struct {
	MedicationID uuid.UUID `json:"medication_id"`
	ScheduleID   uuid.UUID `json:"schedule_id"` // zero for snooze one-shots
	LogID        uuid.UUID `json:"log_id"`      // set only for snooze one-shots
	ScheduledAt  time.Time `json:"scheduled_at"`
	TimeIndex    int       `json:"time_index"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
}

type Reminder struct {
	ID          string
	ChatID      int64
	FireAt      time.Time
	RepeatDaily bool
	Payload     Payload
}

type Store struct {
	mu         sync.Mutex
	pending    map[string]*Reminder
	authorized map[int64]bool
	refresh    chan struct{}
}

func NewStore() *Store {
	return &Store{
		pending:    make(map[string]*Reminder),
		authorized: make(map[int64]bool),
		refresh:    make(chan struct{}, 1),
	}
}

// Authorize allows reminder registration for a chat. Registration fails with
// ErrNotAuthorized until the chat has been authorized (the bot does this on
// /start).
func (s *Store) Authorize(chatID int64) {
	s.mu.Lock()
	s.authorized[chatID] = true
	s.mu.Unlock()
}

func (s *Store) Authorized(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized[chatID]
}

// Register adds a reminder or replaces the one with the same id. A new id is
// rejected with ErrLimitExceeded once MaxPending reminders are pending.
func (s *Store) Register(rem *Reminder) error {
	s.mu.Lock()
	if !s.authorized[rem.ChatID] {
		s.mu.Unlock()
		return ErrNotAuthorized
	}
	if _, replacing := s.pending[rem.ID]; !replacing && len(s.pending) >= MaxPending {
		s.mu.Unlock()
		return ErrLimitExceeded
	}
	cp := *rem
	s.pending[rem.ID] = &cp
	s.mu.Unlock()

	s.signalRefresh()
	return nil
}

func (s *Store) Cancel(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.signalRefresh()
}

func (s *Store) CancelAll() {
	s.mu.Lock()
	s.pending = make(map[string]*Reminder)
	s.mu.Unlock()
	s.signalRefresh()
}

// Pending returns the ids of all pending reminders, sorted
func (s *Store) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// nextDue returns the earliest fire time among pending reminders
func (s *Store) nextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	for _, rem := range s.pending {
		if earliest.IsZero() || rem.FireAt.Before(earliest) {
			earliest = rem.FireAt
		}
	}
	return earliest, !earliest.IsZero()
}

// due collects reminders whose fire time has passed. One-shots are removed
// from the store; daily-repeating reminders advance to the same wall-clock
// time tomorrow.
func (s *Store) due(now time.Time) []*Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []*Reminder
	for id, rem := range s.pending {
		if rem.FireAt.After(now) {
			continue
		}
		cp := *rem
		fired = append(fired, &cp)

		if rem.RepeatDaily {
			next := rem.FireAt.AddDate(0, 0, 1)
			for !next.After(now) {
				next = next.AddDate(0, 0, 1)
			}
			rem.FireAt = next
		} else {
			delete(s.pending, id)
		}
	}

	sort.Slice(fired, func(i, j int) bool { return fired[i].FireAt.Before(fired[j].FireAt) })
	return fired
}

func (s *Store) signalRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
		// A refresh is already pending, skip
	}
}
