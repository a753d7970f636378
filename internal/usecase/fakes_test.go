package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/repository"
)

// fakeCredentialRepository is an in-memory CredentialRepository whose
// RegisterFailure mirrors the single-statement semantics of the SQL
// implementation: increment and conditional lock under one mutex hold.
type fakeCredentialRepository struct {
	mu      sync.Mutex
	records map[string]*domain.UserAuthRecord
	now     func() time.Time

	getErr       error
	failureErr   error
	successErr   error
	setPinErr    error
	fullLoginErr error
}

func newFakeCredentialRepository() *fakeCredentialRepository {
	return &fakeCredentialRepository{
		records: map[string]*domain.UserAuthRecord{},
		now:     time.Now,
	}
}

func (r *fakeCredentialRepository) put(record domain.UserAuthRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := record
	r.records[record.UserID] = &copy
}

func (r *fakeCredentialRepository) Get(_ context.Context, userID string) (*domain.UserAuthRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	record, ok := r.records[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *record
	return &copy, nil
}

func (r *fakeCredentialRepository) SetPin(_ context.Context, userID, pinHash string, pinLength int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setPinErr != nil {
		return r.setPinErr
	}
	record, ok := r.records[userID]
	if !ok {
		record = &domain.UserAuthRecord{UserID: userID, AuthPolicy: domain.AuthPolicyStandard}
		r.records[userID] = record
	}
	record.PinHash = &pinHash
	record.PinLength = pinLength
	record.PinAttempts = 0
	record.PinLockedUntil = nil
	record.UpdatedAt = at
	return nil
}

func (r *fakeCredentialRepository) RegisterFailure(_ context.Context, userID string, maxAttempts int, lockedUntil time.Time) (port.FailureOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failureErr != nil {
		return port.FailureOutcome{}, r.failureErr
	}
	record, ok := r.records[userID]
	if !ok {
		return port.FailureOutcome{}, repository.ErrNotFound
	}
	record.PinAttempts++
	if record.PinAttempts >= maxAttempts && (record.PinLockedUntil == nil || !record.PinLockedUntil.After(r.now())) {
		lock := lockedUntil
		record.PinLockedUntil = &lock
	}
	outcome := port.FailureOutcome{Attempts: record.PinAttempts}
	if record.PinLockedUntil != nil {
		lock := *record.PinLockedUntil
		outcome.LockedUntil = &lock
		outcome.JustLocked = lock.Equal(lockedUntil)
	}
	return outcome, nil
}

func (r *fakeCredentialRepository) RegisterSuccess(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.successErr != nil {
		return r.successErr
	}
	record, ok := r.records[userID]
	if !ok {
		return repository.ErrNotFound
	}
	record.PinAttempts = 0
	record.PinLockedUntil = nil
	verified := at
	record.LastPinVerify = &verified
	record.UpdatedAt = at
	return nil
}

func (r *fakeCredentialRepository) RecordFullLogin(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fullLoginErr != nil {
		return r.fullLoginErr
	}
	record, ok := r.records[userID]
	if !ok {
		record = &domain.UserAuthRecord{UserID: userID, AuthPolicy: domain.AuthPolicyStandard}
		r.records[userID] = record
	}
	record.LastFullLogin = at
	record.PinAttempts = 0
	record.PinLockedUntil = nil
	record.UpdatedAt = at
	return nil
}

//

type fakeSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.DeviceSession

	upsertErr error
	getErr    error
	listErr   error
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: map[string]*domain.DeviceSession{}}
}

func sessionKey(userID, deviceID string) string {
	return userID + "|" + deviceID
}

func (r *fakeSessionRepository) put(session domain.DeviceSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := session
	r.sessions[sessionKey(session.UserID, session.DeviceID)] = &copy
}

func (r *fakeSessionRepository) Upsert(_ context.Context, session domain.DeviceSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	key := sessionKey(session.UserID, session.DeviceID)
	if existing, ok := r.sessions[key]; ok {
		session.ID = existing.ID
		session.CreatedAt = existing.CreatedAt
	}
	copy := session
	r.sessions[key] = &copy
	return nil
}

func (r *fakeSessionRepository) Get(_ context.Context, userID, deviceID string) (*domain.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	session, ok := r.sessions[sessionKey(userID, deviceID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *session
	return &copy, nil
}

func (r *fakeSessionRepository) GetByID(_ context.Context, sessionID string) (*domain.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.ID == sessionID {
			copy := *session
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSessionRepository) ListActiveByUser(_ context.Context, userID string) ([]domain.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.DeviceSession
	for _, session := range r.sessions {
		if session.UserID == userID && session.IsActive {
			out = append(out, *session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (r *fakeSessionRepository) Refresh(_ context.Context, userID, deviceID string, level domain.AuthLevel, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionKey(userID, deviceID)]
	if !ok || !session.IsActive {
		return repository.ErrNotFound
	}
	session.Refresh(level, at)
	return nil
}

func (r *fakeSessionRepository) Invalidate(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.ID == sessionID {
			return session.Invalidate(), nil
		}
	}
	return false, repository.ErrNotFound
}

func (r *fakeSessionRepository) InvalidateAllForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, session := range r.sessions {
		if session.UserID == userID && session.IsActive {
			session.IsActive = false
			session.AuthLevel = domain.AuthLevelExpired
			count++
		}
	}
	return count, nil
}

//

type fakeAttemptLog struct {
	mu      sync.Mutex
	entries []domain.PinAttemptEntry
}

func (l *fakeAttemptLog) Append(_ context.Context, entry domain.PinAttemptEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakeAttemptLog) ListRecent(_ context.Context, userID string, limit int) ([]domain.PinAttemptEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.PinAttemptEntry
	for i := len(l.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if l.entries[i].UserID == userID {
			out = append(out, l.entries[i])
		}
	}
	return out, nil
}

func (l *fakeAttemptLog) count(success bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, entry := range l.entries {
		if entry.Success == success {
			n++
		}
	}
	return n
}

//

type fakeEventPublisher struct {
	mu          sync.Mutex
	configured  []domain.PinConfiguredEvent
	locked      []domain.PinLockedEvent
	fullLogins  []domain.FullLoginRecordedEvent
	invalidated []domain.SessionsInvalidatedEvent
}

func (p *fakeEventPublisher) PublishPinConfigured(_ context.Context, event domain.PinConfiguredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configured = append(p.configured, event)
	return nil
}

func (p *fakeEventPublisher) PublishPinLocked(_ context.Context, event domain.PinLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = append(p.locked, event)
	return nil
}

func (p *fakeEventPublisher) PublishFullLoginRecorded(_ context.Context, event domain.FullLoginRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fullLogins = append(p.fullLogins, event)
	return nil
}

func (p *fakeEventPublisher) PublishSessionsInvalidated(_ context.Context, event domain.SessionsInvalidatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated = append(p.invalidated, event)
	return nil
}

var errStorage = errors.New("storage unavailable")
