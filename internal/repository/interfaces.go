package repository

import (
	"context"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// IdentityRepositoryInterface defines operations for identity data access
type IdentityRepositoryInterface interface {
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	GetByID(ctx context.Context, id int64) (*domain.Identity, error)
	Create(ctx context.Context, name, email string) (*domain.Identity, error)
	AttachEmbedding(ctx context.Context, id int64, imageRef string, embedding domain.Embedding) error
	Delete(ctx context.Context, id int64) error
	ListEnrolled(ctx context.Context) ([]domain.EnrolledIdentity, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

var (
	_ IdentityRepositoryInterface = (*IdentityRepository)(nil)
	_ IdentityRepositoryInterface = (*MemoryIdentityStore)(nil)
)
