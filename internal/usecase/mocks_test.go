package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
	"github.com/MOCDATA-PTY/eclick-identity/internal/repository"
)

type principalKey struct {
	kind domain.PrincipalKind
	id   string
}

type principalRepoMock struct {
	mu          sync.Mutex
	principals  map[principalKey]domain.Principal
	findErr     error
	updateErr   error
	updatedHash string
	updatedAlgo string
	loginStamps map[principalKey]time.Time
}

func newPrincipalRepoMock(principals ...domain.Principal) *principalRepoMock {
	m := &principalRepoMock{
		principals:  make(map[principalKey]domain.Principal),
		loginStamps: make(map[principalKey]time.Time),
	}
	for _, p := range principals {
		m.principals[principalKey{p.Kind, p.ID}] = p
	}
	return m
}

func (m *principalRepoMock) Create(_ context.Context, principal domain.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.principals[principalKey{principal.Kind, principal.ID}] = principal
	return nil
}

func (m *principalRepoMock) GetByID(_ context.Context, kind domain.PrincipalKind, id string) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.principals[principalKey{kind, id}]; ok {
		copied := p
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *principalRepoMock) FindByUsername(_ context.Context, kind domain.PrincipalKind, username string) (*domain.Principal, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.principals {
		if key.kind == kind && p.Username == username {
			copied := p
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *principalRepoMock) UpdatePasswordHash(_ context.Context, kind domain.PrincipalKind, id string, hash string, scheme string, _ time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := principalKey{kind, id}
	p, ok := m.principals[key]
	if !ok {
		return repository.ErrNotFound
	}
	p.PasswordHash = hash
	p.HashScheme = scheme
	m.principals[key] = p
	m.updatedHash = hash
	m.updatedAlgo = scheme
	return nil
}

func (m *principalRepoMock) RecordLogin(_ context.Context, kind domain.PrincipalKind, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginStamps[principalKey{kind, id}] = at
	return nil
}

type passcodeRepoMock struct {
	mu         sync.Mutex
	records    map[string]*domain.Passcode
	issueErr   error
	getErr     error
	consumeErr error
	deleted    int
}

func newPasscodeRepoMock() *passcodeRepoMock {
	return &passcodeRepoMock{records: make(map[string]*domain.Passcode)}
}

func (m *passcodeRepoMock) IssueSuperseding(_ context.Context, passcode domain.Passcode) error {
	if m.issueErr != nil {
		return m.issueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.PrincipalID == passcode.PrincipalID && existing.Purpose == passcode.Purpose && !existing.Used {
			existing.Used = true
		}
	}
	copied := passcode
	m.records[passcode.ID] = &copied
	return nil
}

func (m *passcodeRepoMock) GetLatestUnused(_ context.Context, principalID string) (*domain.Passcode, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Passcode
	for _, record := range m.records {
		if record.PrincipalID != principalID || record.Used {
			continue
		}
		if latest == nil || record.IssuedAt.After(latest.IssuedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *passcodeRepoMock) Consume(_ context.Context, id string) error {
	if m.consumeErr != nil {
		return m.consumeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok || record.Used {
		return repository.ErrNotFound
	}
	record.Used = true
	return nil
}

func (m *passcodeRepoMock) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, record := range m.records {
		if record.ExpiresAt.Before(before) {
			delete(m.records, id)
			count++
		}
	}
	m.deleted += count
	return count, nil
}

type securityStateRepoMock struct {
	mu         sync.Mutex
	states     map[string]*domain.SecurityState
	getErr     error
	failureErr error
	successErr error
}

func newSecurityStateRepoMock() *securityStateRepoMock {
	return &securityStateRepoMock{states: make(map[string]*domain.SecurityState)}
}

func (m *securityStateRepoMock) state(principalID string) *domain.SecurityState {
	if s, ok := m.states[principalID]; ok {
		return s
	}
	s := &domain.SecurityState{PrincipalID: principalID}
	m.states[principalID] = s
	return s
}

func (m *securityStateRepoMock) Get(_ context.Context, principalID string) (*domain.SecurityState, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[principalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *securityStateRepoMock) RecordFailure(_ context.Context, principalID string, threshold int, lockFor time.Duration, now time.Time) (*domain.SecurityState, error) {
	if m.failureErr != nil {
		return nil, m.failureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(principalID)
	s.FailedAttempts++
	if s.FailedAttempts >= threshold {
		until := now.Add(lockFor)
		s.LockedUntil = &until
		s.FailedAttempts = 0
	}
	s.UpdatedAt = now
	copied := *s
	return &copied, nil
}

func (m *securityStateRepoMock) RecordSuccess(_ context.Context, principalID string, now time.Time) error {
	if m.successErr != nil {
		return m.successErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(principalID)
	s.FailedAttempts = 0
	s.LockedUntil = nil
	s.UpdatedAt = now
	return nil
}

func (m *securityStateRepoMock) Suspend(_ context.Context, principalID string, reason string, until *time.Time, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(principalID)
	s.Suspended = true
	s.SuspensionReason = &reason
	s.SuspendedUntil = until
	s.UpdatedAt = now
	return nil
}

func (m *securityStateRepoMock) Unsuspend(_ context.Context, principalID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(principalID)
	s.Suspended = false
	s.SuspensionReason = nil
	s.SuspendedUntil = nil
	s.UpdatedAt = now
	return nil
}

func (m *securityStateRepoMock) Lock(_ context.Context, principalID string, until time.Time, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(principalID)
	s.LockedUntil = &until
	s.UpdatedAt = now
	return nil
}

func (m *securityStateRepoMock) Unlock(_ context.Context, principalID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(principalID)
	s.LockedUntil = nil
	s.FailedAttempts = 0
	s.UpdatedAt = now
	return nil
}

type publisherMock struct {
	mu         sync.Mutex
	succeeded  []domain.LoginSucceededEvent
	failed     []domain.LoginFailedEvent
	locked     []domain.AccountLockedEvent
	suspended  []domain.AccountSuspendedEvent
	issued     []domain.PasscodeIssuedEvent
	pwdChanged []domain.PasswordChangedEvent
	migrated   []domain.HashMigratedEvent
}

func (m *publisherMock) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.succeeded = append(m.succeeded, event)
	return nil
}

func (m *publisherMock) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, event)
	return nil
}

func (m *publisherMock) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = append(m.locked, event)
	return nil
}

func (m *publisherMock) PublishAccountSuspended(_ context.Context, event domain.AccountSuspendedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = append(m.suspended, event)
	return nil
}

func (m *publisherMock) PublishPasscodeIssued(_ context.Context, event domain.PasscodeIssuedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, event)
	return nil
}

func (m *publisherMock) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pwdChanged = append(m.pwdChanged, event)
	return nil
}

func (m *publisherMock) PublishHashMigrated(_ context.Context, event domain.HashMigratedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.migrated = append(m.migrated, event)
	return nil
}

type notifierMock struct {
	mu         sync.Mutex
	deliveries []port.PasscodeDelivery
	err        error
}

func (m *notifierMock) DeliverPasscode(_ context.Context, delivery port.PasscodeDelivery) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, delivery)
	return nil
}

type rateLimitStoreMock struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newRateLimitStoreMock() *rateLimitStoreMock {
	return &rateLimitStoreMock{attempts: make(map[string][]time.Time)}
}

func (m *rateLimitStoreMock) RecordAttempt(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[key] = append(m.attempts[key], at)
	return nil
}

func (m *rateLimitStoreMock) CountAttempts(_ context.Context, key string, window time.Duration, reference time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, at := range m.attempts[key] {
		if !at.Before(reference.Add(-window)) && !at.After(reference) {
			count++
		}
	}
	return count, nil
}

func (m *rateLimitStoreMock) TrimWindow(_ context.Context, key string, window time.Duration, reference time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.attempts[key][:0]
	for _, at := range m.attempts[key] {
		if !at.Before(reference.Add(-window)) {
			kept = append(kept, at)
		}
	}
	m.attempts[key] = kept
	return nil
}

func (m *rateLimitStoreMock) OldestAttempt(_ context.Context, key string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest time.Time
	found := false
	for _, at := range m.attempts[key] {
		if at.Before(reference.Add(-window)) || at.After(reference) {
			continue
		}
		if !found || at.Before(oldest) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

var errStorageDown = errors.New("storage unavailable")
