package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// MemoryIdentityStore is an in-process identity store used for local runs and tests.
// It enforces the same uniqueness and ordering rules as IdentityRepository.
type MemoryIdentityStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*domain.Identity
	byEmail map[string]int64
	now     func() time.Time
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		nextID:  1,
		byID:    make(map[int64]*domain.Identity),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

func (s *MemoryIdentityStore) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	return cloneIdentity(s.byID[id]), nil
}

func (s *MemoryIdentityStore) GetByID(ctx context.Context, id int64) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return cloneIdentity(identity), nil
}

func (s *MemoryIdentityStore) Create(ctx context.Context, name, email string) (*domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, domain.ErrDuplicateEmail
	}

	now := s.now()
	identity := &domain.Identity{
		ID:        s.nextID,
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.nextID++

	s.byID[identity.ID] = identity
	s.byEmail[email] = identity.ID

	return cloneIdentity(identity), nil
}

func (s *MemoryIdentityStore) AttachEmbedding(ctx context.Context, id int64, imageRef string, embedding domain.Embedding) error {
	if embedding.IsZero() {
		return fmt.Errorf("attach embedding: %w", domain.ErrEmptyEmbedding)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}

	identity.ImageReference = imageRef
	identity.Embedding = embedding
	identity.UpdatedAt = s.now()

	return nil
}

// Delete removes the identity if present. It ignores ctx cancellation so
// rollbacks issued after a deadline still take effect.
func (s *MemoryIdentityStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return nil
	}

	delete(s.byEmail, identity.Email)
	delete(s.byID, id)

	return nil
}

func (s *MemoryIdentityStore) ListEnrolled(ctx context.Context) ([]domain.EnrolledIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	enrolled := make([]domain.EnrolledIdentity, 0, len(s.byID))
	for _, identity := range s.byID {
		if !identity.Enrolled() {
			continue
		}
		enrolled = append(enrolled, domain.EnrolledIdentity{
			ID:        identity.ID,
			Name:      identity.Name,
			Email:     identity.Email,
			Embedding: identity.Embedding,
		})
	}
	s.mu.RUnlock()

	sort.Slice(enrolled, func(i, j int) bool {
		return enrolled[i].ID < enrolled[j].ID
	})

	return enrolled, nil
}

// Count returns the number of fully enrolled identities
func (s *MemoryIdentityStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	for _, identity := range s.byID {
		if identity.Enrolled() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryIdentityStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Embedding is immutable, so a shallow copy is enough
func cloneIdentity(identity *domain.Identity) *domain.Identity {
	clone := *identity
	return &clone
}
