package b2uploader

import (
	"sort"
	"sync"
	"time"

	gerrors "github.com/goliatone/go-errors"
)

// LargeFileState is the lifecycle stage of one multipart attempt.
type LargeFileState string

const (
	LargeFileStatePlanned   LargeFileState = "planned"
	LargeFileStateStarted   LargeFileState = "started"
	LargeFileStateInFlight  LargeFileState = "in_flight"
	LargeFileStateAcked     LargeFileState = "acked"
	LargeFileStateFinalized LargeFileState = "finalized"
	LargeFileStateFailed    LargeFileState = "failed"
)

var largeFileTransitions = map[LargeFileState]LargeFileState{
	LargeFileStatePlanned:  LargeFileStateStarted,
	LargeFileStateStarted:  LargeFileStateInFlight,
	LargeFileStateInFlight: LargeFileStateAcked,
	LargeFileStateAcked:    LargeFileStateFinalized,
}

// Terminal reports whether no further transition is possible.
func (s LargeFileState) Terminal() bool {
	return s == LargeFileStateFinalized || s == LargeFileStateFailed
}

// LargeFileSession tracks one multipart attempt of a job. Sessions live in
// memory only.
type LargeFileSession struct {
	ID        string
	FileID    string
	Path      string
	Name      string
	BucketID  string
	TotalSize int64
	PartSize  int64
	PartCount int
	Attempt   int
	State     LargeFileState
	Acked     map[int]PartResult
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// LargeFileSessionStore is an in-memory registry backed by a RWMutex.
type LargeFileSessionStore struct {
	mu        sync.RWMutex
	ttl       time.Duration
	sessions  map[string]*LargeFileSession
	timeNowFn func() time.Time
}

// NewLargeFileSessionStore creates a store with the provided TTL, or
// DefaultSessionTTL if ttl <= 0.
func NewLargeFileSessionStore(ttl time.Duration) *LargeFileSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &LargeFileSessionStore{
		ttl:       ttl,
		sessions:  make(map[string]*LargeFileSession),
		timeNowFn: time.Now,
	}
}

func (s *LargeFileSessionStore) timeNow() time.Time {
	if s.timeNowFn != nil {
		return s.timeNowFn()
	}
	return time.Now()
}

// Create registers a session in the planned state.
func (s *LargeFileSessionStore) Create(session *LargeFileSession) (*LargeFileSession, error) {
	if session == nil {
		return nil, gerrors.NewValidation("large file session definition required",
			gerrors.FieldError{
				Field:   "session",
				Message: "cannot be nil",
			},
		)
	}

	if session.ID == "" {
		return nil, gerrors.NewValidation("large file session definition invalid",
			gerrors.FieldError{
				Field:   "id",
				Message: "cannot be empty",
			},
		)
	}

	if session.PartCount <= 0 {
		return nil, gerrors.NewValidation("large file session definition invalid",
			gerrors.FieldError{
				Field:   "part_count",
				Message: "must be greater than zero",
				Value:   session.PartCount,
			},
		)
	}

	now := s.timeNow()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = session.CreatedAt.Add(s.ttl)
	}
	if session.Acked == nil {
		session.Acked = make(map[int]PartResult, session.PartCount)
	}
	session.State = LargeFileStatePlanned

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return nil, ErrSessionExists
	}

	stored := cloneLargeFileSession(session)
	s.sessions[session.ID] = stored

	return cloneLargeFileSession(stored), nil
}

// Get returns a copy of the session if it exists and has not expired.
func (s *LargeFileSessionStore) Get(id string) (*LargeFileSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	if s.timeNow().After(session.ExpiresAt) {
		return nil, false
	}

	return cloneLargeFileSession(session), true
}

// Len returns the number of tracked sessions, expired ones included.
func (s *LargeFileSessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns copies of every tracked session, oldest first.
func (s *LargeFileSessionStore) List() []*LargeFileSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*LargeFileSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, cloneLargeFileSession(session))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *LargeFileSessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// MarkStarted records the server side file id.
func (s *LargeFileSessionStore) MarkStarted(id, fileID string) (*LargeFileSession, error) {
	return s.update(id, func(session *LargeFileSession) error {
		if err := transition(session, LargeFileStateStarted); err != nil {
			return err
		}
		session.FileID = fileID
		return nil
	})
}

func (s *LargeFileSessionStore) MarkInFlight(id string) (*LargeFileSession, error) {
	return s.update(id, func(session *LargeFileSession) error {
		return transition(session, LargeFileStateInFlight)
	})
}

// AckPart records an acknowledged part. Every part is acked at most once.
func (s *LargeFileSessionStore) AckPart(id string, part PartResult) (*LargeFileSession, error) {
	return s.update(id, func(session *LargeFileSession) error {
		if session.State != LargeFileStateInFlight {
			return ErrInvalidTransition
		}
		if part.Number < 1 || part.Number > session.PartCount {
			return gerrors.NewValidation("part ack rejected",
				gerrors.FieldError{
					Field:   "number",
					Message: "part number outside plan",
					Value:   part.Number,
				},
			)
		}
		if _, exists := session.Acked[part.Number]; exists {
			return ErrPartAlreadyAcked
		}
		session.Acked[part.Number] = part
		return nil
	})
}

// MarkAcked requires every planned part to be acknowledged.
func (s *LargeFileSessionStore) MarkAcked(id string) (*LargeFileSession, error) {
	return s.update(id, func(session *LargeFileSession) error {
		if len(session.Acked) != session.PartCount {
			return ErrPartSlotMissing
		}
		return transition(session, LargeFileStateAcked)
	})
}

func (s *LargeFileSessionStore) MarkFinalized(id string) (*LargeFileSession, error) {
	return s.update(id, func(session *LargeFileSession) error {
		return transition(session, LargeFileStateFinalized)
	})
}

// MarkFailed is allowed from any non-terminal state.
func (s *LargeFileSessionStore) MarkFailed(id string, cause error) (*LargeFileSession, error) {
	return s.update(id, func(session *LargeFileSession) error {
		if session.State.Terminal() {
			return ErrSessionClosed
		}
		session.State = LargeFileStateFailed
		session.Err = cause
		return nil
	})
}

func (s *LargeFileSessionStore) update(id string, fn func(*LargeFileSession) error) (*LargeFileSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if s.timeNow().After(session.ExpiresAt) {
		delete(s.sessions, id)
		return nil, ErrSessionNotFound
	}

	if err := fn(session); err != nil {
		return nil, err
	}
	session.UpdatedAt = s.timeNow()

	return cloneLargeFileSession(session), nil
}

// CleanupExpired removes expired sessions and returns their IDs.
func (s *LargeFileSessionStore) CleanupExpired(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
			removed = append(removed, id)
		}
	}

	return removed
}

func transition(session *LargeFileSession, to LargeFileState) error {
	if session.State.Terminal() {
		return ErrSessionClosed
	}
	if largeFileTransitions[session.State] != to {
		return ErrInvalidTransition
	}
	session.State = to
	return nil
}

func cloneLargeFileSession(in *LargeFileSession) *LargeFileSession {
	if in == nil {
		return nil
	}

	out := *in
	if in.Acked != nil {
		out.Acked = make(map[int]PartResult, len(in.Acked))
		for n, part := range in.Acked {
			out.Acked[n] = part
		}
	}

	return &out
}
