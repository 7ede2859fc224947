package service

import (
	"context"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// IdentityStore is the persistence contract the enrollment coordinator needs
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	Create(ctx context.Context, name, email string) (*domain.Identity, error)
	AttachEmbedding(ctx context.Context, id int64, imageRef string, embedding domain.Embedding) error
	Delete(ctx context.Context, id int64) error
	CandidateSource
}

// CandidateSource lists fully enrolled identities in ascending id order
type CandidateSource interface {
	ListEnrolled(ctx context.Context) ([]domain.EnrolledIdentity, error)
}

// ImageStore persists enrollment images
type ImageStore interface {
	Save(ctx context.Context, identityID int64, image []byte) (string, error)
	Remove(ctx context.Context, ref string) error
}
