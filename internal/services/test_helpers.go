package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/BradenHooton/libgate/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	CreateFunc         func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc func(ctx context.Context, id, passwordHash string) error
	SetTwoFactorFunc   func(ctx context.Context, id string, enabled bool) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) SetTwoFactor(ctx context.Context, id string, enabled bool) (*models.User, error) {
	if m.SetTwoFactorFunc != nil {
		return m.SetTwoFactorFunc(ctx, id, enabled)
	}
	return nil, models.ErrInternalServer
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc    func(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error
	IsTokenRevokedFunc func(ctx context.Context, jti string) (bool, error)
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, expiresAt, reason)
	}
	return nil
}

func (m *MockTokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if m.IsTokenRevokedFunc != nil {
		return m.IsTokenRevokedFunc(ctx, jti)
	}
	return false, nil
}

// MemoryChallengeRepository keeps challenges in memory with the same
// single-open-challenge behaviour as the Postgres repository.
type MemoryChallengeRepository struct {
	mu         sync.Mutex
	challenges []*models.TwoFactorChallenge
	now        func() time.Time
	nextID     int
}

func NewMemoryChallengeRepository(now func() time.Time) *MemoryChallengeRepository {
	return &MemoryChallengeRepository{now: now}
}

func (m *MemoryChallengeRepository) Create(ctx context.Context, c *models.TwoFactorChallenge) (*models.TwoFactorChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, existing := range m.challenges {
		if existing.UserID == c.UserID && existing.UsedAt == nil {
			existing.UsedAt = &now
		}
	}

	m.nextID++
	stored := *c
	if stored.ID == "" {
		stored.ID = "challenge-" + strconv.Itoa(m.nextID)
	}
	m.challenges = append(m.challenges, &stored)
	out := stored
	return &out, nil
}

func (m *MemoryChallengeRepository) LatestOpen(ctx context.Context, userID string) (*models.TwoFactorChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.challenges) - 1; i >= 0; i-- {
		c := m.challenges[i]
		if c.UserID == userID && c.UsedAt == nil {
			out := *c
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryChallengeRepository) IncrementFailures(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.challenges {
		if c.ID == id {
			c.FailedAttempts++
			return c.FailedAttempts, nil
		}
	}
	return 0, models.ErrNotFound
}

func (m *MemoryChallengeRepository) MarkUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.challenges {
		if c.ID == id && c.UsedAt == nil {
			now := m.now()
			c.UsedAt = &now
			return nil
		}
	}
	return models.ErrNotFound
}

// MemoryPasswordResetRepository keeps reset tokens in memory
type MemoryPasswordResetRepository struct {
	mu     sync.Mutex
	tokens map[string]*models.PasswordResetToken
	now    func() time.Time
}

func NewMemoryPasswordResetRepository(now func() time.Time) *MemoryPasswordResetRepository {
	return &MemoryPasswordResetRepository{tokens: make(map[string]*models.PasswordResetToken), now: now}
}

func (m *MemoryPasswordResetRepository) Create(ctx context.Context, userID, tokenHash, email string, expiresAt time.Time) (*models.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for hash, t := range m.tokens {
		if t.UserID == userID && t.UsedAt == nil {
			delete(m.tokens, hash)
		}
	}

	t := &models.PasswordResetToken{
		ID:        "reset-" + tokenHash[:8],
		UserID:    userID,
		TokenHash: tokenHash,
		Email:     email,
		ExpiresAt: expiresAt,
		CreatedAt: m.now(),
	}
	m.tokens[tokenHash] = t
	out := *t
	return &out, nil
}

func (m *MemoryPasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (m *MemoryPasswordResetRepository) MarkAsUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tokens {
		if t.ID == id && t.UsedAt == nil {
			now := m.now()
			t.UsedAt = &now
			return nil
		}
	}
	return models.ErrNotFound
}

// SentEmail is one message captured by MockEmailService
type SentEmail struct {
	To        string
	Code      string
	Link      string
	ExpiresAt time.Time
}

// MockEmailService records outgoing mail
type MockEmailService struct {
	mu   sync.Mutex
	Sent []SentEmail
	Err  error
}

func (m *MockEmailService) SendSecondFactorCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentEmail{To: email, Code: code, ExpiresAt: expiresAt})
	return nil
}

func (m *MockEmailService) SendPasswordReset(ctx context.Context, email, link string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentEmail{To: email, Link: link, ExpiresAt: expiresAt})
	return nil
}

// Last returns the most recent message, or the zero value.
func (m *MockEmailService) Last() SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentEmail{}
	}
	return m.Sent[len(m.Sent)-1]
}
