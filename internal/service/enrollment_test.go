package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/imagestore"
	"github.com/saturnino-fabrica-de-software/faceid/internal/metrics"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
	mockprovider "github.com/saturnino-fabrica-de-software/faceid/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/faceid/internal/repository"
)

var enforce = provider.RepresentOptions{EnforceDetection: true}

func newTestEnrollment(store IdentityStore, images ImageStore, p provider.EmbeddingProvider) (*EnrollmentService, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewEnrollmentService(store, images, p, EnrollmentConfig{
		EmbeddingTimeout: time.Second,
		RollbackTimeout:  time.Second,
	}, m, discardLogger()), m
}

func faceImage(seed string) []byte {
	img := make([]byte, mockprovider.MinImageSize)
	copy(img, seed)
	return img
}

func TestEnrollmentService_Enroll(t *testing.T) {
	image := []byte("face")
	embedding := domain.MustEmbedding(0.1, 0.2, 0.3)
	storageErr := errors.New("disk full")
	dbErr := errors.New("connection reset")

	tests := []struct {
		name       string
		setupMocks func(*MockIdentityStore, *MockImageStore, *MockEmbeddingProvider)
		wantErr    error
		wantResult string
	}{
		{
			name: "success",
			setupMocks: func(store *MockIdentityStore, images *MockImageStore, p *MockEmbeddingProvider) {
				store.On("FindByEmail", mock.Anything, "alice@x.io").Return(nil, nil)
				store.On("Create", mock.Anything, "Alice", "alice@x.io").
					Return(&domain.Identity{ID: 1, Name: "Alice", Email: "alice@x.io"}, nil)
				images.On("Save", mock.Anything, int64(1), image).Return("/faces/user_1/face.jpg", nil)
				p.On("Represent", mock.Anything, image, enforce).Return(embedding, nil)
				store.On("AttachEmbedding", mock.Anything, int64(1), "/faces/user_1/face.jpg", embedding).Return(nil)
			},
			wantResult: metrics.ResultSuccess,
		},
		{
			name: "email already enrolled",
			setupMocks: func(store *MockIdentityStore, images *MockImageStore, p *MockEmbeddingProvider) {
				store.On("FindByEmail", mock.Anything, "alice@x.io").
					Return(&domain.Identity{ID: 1, Email: "alice@x.io"}, nil)
			},
			wantErr:    domain.ErrDuplicateEmail,
			wantResult: "EMAIL_ALREADY_REGISTERED",
		},
		{
			name: "duplicate detected by store on create",
			setupMocks: func(store *MockIdentityStore, images *MockImageStore, p *MockEmbeddingProvider) {
				store.On("FindByEmail", mock.Anything, "alice@x.io").Return(nil, nil)
				store.On("Create", mock.Anything, "Alice", "alice@x.io").
					Return(nil, domain.ErrDuplicateEmail.WithError(errors.New("23505")))
			},
			wantErr:    domain.ErrDuplicateEmail,
			wantResult: "EMAIL_ALREADY_REGISTERED",
		},
		{
			name: "lookup fails",
			setupMocks: func(store *MockIdentityStore, images *MockImageStore, p *MockEmbeddingProvider) {
				store.On("FindByEmail", mock.Anything, "alice@x.io").Return(nil, dbErr)
			},
			wantErr:    dbErr,
			wantResult: "INTERNAL_ERROR",
		},
		{
			name: "image storage fails",
			setupMocks: func(store *MockIdentityStore, images *MockImageStore, p *MockEmbeddingProvider) {
				store.On("FindByEmail", mock.Anything, "alice@x.io").Return(nil, nil)
				store.On("Create", mock.Anything, "Alice", "alice@x.io").
					Return(&domain.Identity{ID: 1}, nil)
				images.On("Save", mock.Anything, int64(1), image).Return("", storageErr)
				store.On("Delete", mock.Anything, int64(1)).Return(nil)
			},
			wantErr:    domain.ErrImageStorage,
			wantResult: "IMAGE_STORAGE_FAILED",
		},
		{
			name: "no face detected",
			setupMocks: func(store *MockIdentityStore, images *MockImageStore, p *MockEmbeddingProvider) {
				store.On("FindByEmail", mock.Anything, "alice@x.io").Return(nil, nil)
				store.On("Create", mock.Anything, "Alice", "alice@x.io").
					Return(&domain.Identity{ID: 1}, nil)
				images.On("Save", mock.Anything, int64(1), image).Return("/faces/user_1/face.jpg", nil)
				p.On("Represent", mock.Anything, image, enforce).Return(domain.Embedding{}, provider.ErrNoFace)
				images.On("Remove", mock.Anything, "/faces/user_1/face.jpg").Return(nil)
				store.On("Delete", mock.Anything, int64(1)).Return(nil)
			},
			wantErr:    domain.ErrNoFaceDetected,
			wantResult: "NO_FACE_DETECTED",
		},
		{
			name: "provider unavailable",
			setupMocks: func(store *MockIdentityStore, images *MockImageStore, p *MockEmbeddingProvider) {
				store.On("FindByEmail", mock.Anything, "alice@x.io").Return(nil, nil)
				store.On("Create", mock.Anything, "Alice", "alice@x.io").
					Return(&domain.Identity{ID: 1}, nil)
				images.On("Save", mock.Anything, int64(1), image).Return("/faces/user_1/face.jpg", nil)
				p.On("Represent", mock.Anything, image, enforce).Return(domain.Embedding{}, provider.ErrUnavailable)
				images.On("Remove", mock.Anything, "/faces/user_1/face.jpg").Return(nil)
				store.On("Delete", mock.Anything, int64(1)).Return(nil)
			},
			wantErr:    domain.ErrEmbeddingExtraction,
			wantResult: "EMBEDDING_EXTRACTION_FAILED",
		},
		{
			name: "provider returns empty embedding",
			setupMocks: func(store *MockIdentityStore, images *MockImageStore, p *MockEmbeddingProvider) {
				store.On("FindByEmail", mock.Anything, "alice@x.io").Return(nil, nil)
				store.On("Create", mock.Anything, "Alice", "alice@x.io").
					Return(&domain.Identity{ID: 1}, nil)
				images.On("Save", mock.Anything, int64(1), image).Return("/faces/user_1/face.jpg", nil)
				p.On("Represent", mock.Anything, image, enforce).Return(domain.Embedding{}, nil)
				images.On("Remove", mock.Anything, "/faces/user_1/face.jpg").Return(nil)
				store.On("Delete", mock.Anything, int64(1)).Return(nil)
			},
			wantErr:    domain.ErrEmbeddingExtraction,
			wantResult: "EMBEDDING_EXTRACTION_FAILED",
		},
		{
			name: "identity deleted before embedding attached",
			setupMocks: func(store *MockIdentityStore, images *MockImageStore, p *MockEmbeddingProvider) {
				store.On("FindByEmail", mock.Anything, "alice@x.io").Return(nil, nil)
				store.On("Create", mock.Anything, "Alice", "alice@x.io").
					Return(&domain.Identity{ID: 1}, nil)
				images.On("Save", mock.Anything, int64(1), image).Return("/faces/user_1/face.jpg", nil)
				p.On("Represent", mock.Anything, image, enforce).Return(embedding, nil)
				store.On("AttachEmbedding", mock.Anything, int64(1), "/faces/user_1/face.jpg", embedding).
					Return(domain.ErrIdentityNotFound)
				images.On("Remove", mock.Anything, "/faces/user_1/face.jpg").Return(nil)
				store.On("Delete", mock.Anything, int64(1)).Return(nil)
			},
			wantErr:    domain.ErrIdentityNotFound,
			wantResult: "IDENTITY_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockIdentityStore)
			images := new(MockImageStore)
			p := new(MockEmbeddingProvider)
			tt.setupMocks(store, images, p)

			svc, m := newTestEnrollment(store, images, p)

			identity, err := svc.Enroll(context.Background(), EnrollRequest{
				Name:  "Alice",
				Email: "alice@x.io",
				Image: image,
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, identity)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(1), identity.ID)
				assert.Equal(t, "/faces/user_1/face.jpg", identity.ImageReference)
				assert.True(t, identity.Enrolled())
				store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
			}

			assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrollmentsTotal.WithLabelValues(tt.wantResult)))
			store.AssertExpectations(t)
			images.AssertExpectations(t)
			p.AssertExpectations(t)
		})
	}
}

func TestEnrollmentService_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  EnrollRequest
	}{
		{"missing name", EnrollRequest{Name: "  ", Email: "a@x.io", Image: []byte("x")}},
		{"missing email", EnrollRequest{Name: "Alice", Email: "", Image: []byte("x")}},
		{"malformed email", EnrollRequest{Name: "Alice", Email: "not-an-email", Image: []byte("x")}},
		{"display-name email", EnrollRequest{Name: "Alice", Email: "Alice <a@x.io>", Image: []byte("x")}},
		{"missing image", EnrollRequest{Name: "Alice", Email: "a@x.io"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockIdentityStore)
			svc, _ := newTestEnrollment(store, new(MockImageStore), new(MockEmbeddingProvider))

			_, err := svc.Enroll(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrValidationFailed)
			store.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
		})
	}
}

func TestEnrollmentService_NormalizesEmail(t *testing.T) {
	store := repository.NewMemoryIdentityStore()
	img := faceImage("alice")
	svc, _ := newTestEnrollment(store, newMemoryImages(), mockprovider.New())

	identity, err := svc.Enroll(context.Background(), EnrollRequest{Name: " Alice ", Email: " Alice@X.io ", Image: img})
	require.NoError(t, err)
	assert.Equal(t, "alice@x.io", identity.Email)
	assert.Equal(t, "Alice", identity.Name)

	_, err = svc.Enroll(context.Background(), EnrollRequest{Name: "Alice", Email: "alice@x.io", Image: img})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestEnrollmentService_RollbackFailureIsReported(t *testing.T) {
	image := []byte("face")
	deleteErr := errors.New("delete failed")

	store := new(MockIdentityStore)
	images := new(MockImageStore)
	p := new(MockEmbeddingProvider)

	store.On("FindByEmail", mock.Anything, "alice@x.io").Return(nil, nil)
	store.On("Create", mock.Anything, "Alice", "alice@x.io").Return(&domain.Identity{ID: 9}, nil)
	images.On("Save", mock.Anything, int64(9), image).Return("", errors.New("disk full"))
	store.On("Delete", mock.Anything, int64(9)).Return(deleteErr)

	svc, m := newTestEnrollment(store, images, p)

	_, err := svc.Enroll(context.Background(), EnrollRequest{Name: "Alice", Email: "alice@x.io", Image: image})
	assert.ErrorIs(t, err, domain.ErrImageStorage)
	assert.ErrorIs(t, err, deleteErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollbackFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrollmentsTotal.WithLabelValues("IMAGE_STORAGE_FAILED")))
}

func TestEnrollmentService_ImageStorageFailureLeavesNoRecord(t *testing.T) {
	store := repository.NewMemoryIdentityStore()
	images := new(MockImageStore)
	images.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("read-only file system"))

	svc, m := newTestEnrollment(store, images, mockprovider.New())

	_, err := svc.Enroll(context.Background(), EnrollRequest{Name: "Alice", Email: "alice@x.io", Image: faceImage("alice")})
	assert.ErrorIs(t, err, domain.ErrImageStorage)

	assertNoIdentity(t, store, "alice@x.io")

	found, err := store.FindByEmail(context.Background(), "alice@x.io")
	require.NoError(t, err)
	assert.Nil(t, found, "email must be free for a retry")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrollmentRollbacks))
}

func TestEnrollmentService_NoFaceLeavesNothingOnDisk(t *testing.T) {
	store := repository.NewMemoryIdentityStore()
	files, err := imagestore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	svc, _ := newTestEnrollment(store, files, mockprovider.New())

	_, err = svc.Enroll(context.Background(), EnrollRequest{Name: "Alice", Email: "alice@x.io", Image: []byte("tiny")})
	assert.ErrorIs(t, err, domain.ErrNoFaceDetected)

	entries, err := os.ReadDir(files.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)

	assertNoIdentity(t, store, "alice@x.io")
}

func TestEnrollmentService_EmbeddingTimeoutRollsBack(t *testing.T) {
	store := repository.NewMemoryIdentityStore()
	files, err := imagestore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	blocking := providerFunc(func(ctx context.Context, _ []byte, _ provider.RepresentOptions) (domain.Embedding, error) {
		<-ctx.Done()
		return domain.Embedding{}, ctx.Err()
	})

	svc := NewEnrollmentService(store, files, blocking, EnrollmentConfig{
		EmbeddingTimeout: 20 * time.Millisecond,
		RollbackTimeout:  time.Second,
	}, nil, discardLogger())

	_, err = svc.Enroll(context.Background(), EnrollRequest{Name: "Alice", Email: "alice@x.io", Image: faceImage("alice")})
	assert.ErrorIs(t, err, domain.ErrEmbeddingExtraction)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assertNoIdentity(t, store, "alice@x.io")
	_, statErr := os.Stat(filepath.Join(files.Root(), "user_1"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnrollmentService_CancelledRequestStillRollsBack(t *testing.T) {
	store := repository.NewMemoryIdentityStore()
	ctx, cancel := context.WithCancel(context.Background())

	cancelling := providerFunc(func(pctx context.Context, _ []byte, _ provider.RepresentOptions) (domain.Embedding, error) {
		cancel()
		<-pctx.Done()
		return domain.Embedding{}, pctx.Err()
	})

	images := newMemoryImages()
	svc, _ := newTestEnrollment(store, images, cancelling)

	_, err := svc.Enroll(ctx, EnrollRequest{Name: "Alice", Email: "alice@x.io", Image: faceImage("alice")})
	assert.ErrorIs(t, err, domain.ErrEmbeddingExtraction)
	assert.ErrorIs(t, err, context.Canceled)

	assertNoIdentity(t, store, "alice@x.io")
	assert.Zero(t, images.Len())
}

func TestEnrollmentService_ConcurrentSameEmail(t *testing.T) {
	store := repository.NewMemoryIdentityStore()
	svc, m := newTestEnrollment(store, newMemoryImages(), mockprovider.New())

	const workers = 12
	var (
		succeeded  atomic.Int32
		duplicates atomic.Int32
	)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.Enroll(ctx, EnrollRequest{
				Name:  fmt.Sprintf("Alice %d", i),
				Email: "alice@x.io",
				Image: faceImage(fmt.Sprintf("alice-%d", i)),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrDuplicateEmail):
				duplicates.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), duplicates.Load())

	enrolled, err := store.ListEnrolled(context.Background())
	require.NoError(t, err)
	assert.Len(t, enrolled, 1)
	assert.Equal(t, float64(workers-1), testutil.ToFloat64(m.EnrollmentsTotal.WithLabelValues("EMAIL_ALREADY_REGISTERED")))
}

func TestEnrollmentService_AliceBobScenario(t *testing.T) {
	store := repository.NewMemoryIdentityStore()
	images := newMemoryImages()
	svc, _ := newTestEnrollment(store, images, mockprovider.New())
	ctx := context.Background()

	alice, err := svc.Enroll(ctx, EnrollRequest{Name: "Alice", Email: "alice@x.io", Image: faceImage("alice")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), alice.ID)

	_, err = svc.Enroll(ctx, EnrollRequest{Name: "Bob", Email: "alice@x.io", Image: faceImage("bob")})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	count, _ := store.Count(ctx)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, images.Len())

	stored, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)
}

func TestEnrollmentService_PanicStillRollsBack(t *testing.T) {
	store := repository.NewMemoryIdentityStore()
	panicking := providerFunc(func(context.Context, []byte, provider.RepresentOptions) (domain.Embedding, error) {
		panic("provider exploded")
	})

	images := newMemoryImages()
	svc, _ := newTestEnrollment(store, images, panicking)

	assert.Panics(t, func() {
		_, _ = svc.Enroll(context.Background(), EnrollRequest{Name: "Alice", Email: "alice@x.io", Image: faceImage("alice")})
	})

	assertNoIdentity(t, store, "alice@x.io")
	assert.Zero(t, images.Len())
}

// assertNoIdentity fails when any record, provisional or enrolled, holds email
func assertNoIdentity(t *testing.T, store IdentityStore, email string) {
	t.Helper()
	found, err := store.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	assert.Nil(t, found, "identity %s should have been rolled back", email)
}
