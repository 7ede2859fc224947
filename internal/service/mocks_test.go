package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
)

type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockIdentityStore) Create(ctx context.Context, name, email string) (*domain.Identity, error) {
	args := m.Called(ctx, name, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockIdentityStore) AttachEmbedding(ctx context.Context, id int64, imageRef string, embedding domain.Embedding) error {
	args := m.Called(ctx, id, imageRef, embedding)
	return args.Error(0)
}

func (m *MockIdentityStore) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockIdentityStore) ListEnrolled(ctx context.Context) ([]domain.EnrolledIdentity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.EnrolledIdentity), args.Error(1)
}

type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Save(ctx context.Context, identityID int64, image []byte) (string, error) {
	args := m.Called(ctx, identityID, image)
	return args.String(0), args.Error(1)
}

func (m *MockImageStore) Remove(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

type MockEmbeddingProvider struct {
	mock.Mock
}

func (m *MockEmbeddingProvider) Represent(ctx context.Context, image []byte, opts provider.RepresentOptions) (domain.Embedding, error) {
	args := m.Called(ctx, image, opts)
	return args.Get(0).(domain.Embedding), args.Error(1)
}

func (m *MockEmbeddingProvider) Name() string {
	return "mock"
}

// providerFunc adapts a function into an EmbeddingProvider
type providerFunc func(ctx context.Context, image []byte, opts provider.RepresentOptions) (domain.Embedding, error)

func (f providerFunc) Represent(ctx context.Context, image []byte, opts provider.RepresentOptions) (domain.Embedding, error) {
	return f(ctx, image, opts)
}

func (f providerFunc) Name() string { return "func" }

// fixedProvider returns the embedding registered for each image payload
func fixedProvider(byImage map[string]domain.Embedding) provider.EmbeddingProvider {
	return providerFunc(func(ctx context.Context, image []byte, _ provider.RepresentOptions) (domain.Embedding, error) {
		if err := ctx.Err(); err != nil {
			return domain.Embedding{}, err
		}
		emb, ok := byImage[string(image)]
		if !ok {
			return domain.Embedding{}, provider.ErrNoFace
		}
		return emb, nil
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
