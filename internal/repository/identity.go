package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// IdentityRepository persists identities in the identities table
type IdentityRepository struct {
	pool PgxPool
}

func NewIdentityRepository(pool PgxPool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	query := `
		SELECT id, name, email, image_path, embedding, created_at, updated_at
		FROM identities
		WHERE email = $1
	`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find identity by email: %w", err)
	}

	return identity, nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id int64) (*domain.Identity, error) {
	query := `
		SELECT id, name, email, image_path, embedding, created_at, updated_at
		FROM identities
		WHERE id = $1
	`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity by id: %w", err)
	}

	return identity, nil
}

// Create inserts a provisional identity. The unique index on email makes a
// concurrent duplicate fail here even if FindByEmail raced.
func (r *IdentityRepository) Create(ctx context.Context, name, email string) (*domain.Identity, error) {
	query := `
		INSERT INTO identities (name, email, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	identity := &domain.Identity{
		Name:  name,
		Email: email,
	}

	err := r.pool.QueryRow(ctx, query, name, email).
		Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail.WithError(err)
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	return identity, nil
}

func (r *IdentityRepository) AttachEmbedding(ctx context.Context, id int64, imageRef string, embedding domain.Embedding) error {
	if embedding.IsZero() {
		return fmt.Errorf("attach embedding: %w", domain.ErrEmptyEmbedding)
	}

	query := `
		UPDATE identities
		SET image_path = $2, embedding = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, imageRef, pgvector.NewVector(embedding.Float32()))
	if err != nil {
		return fmt.Errorf("attach embedding: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}

	return nil
}

// Delete is idempotent: deleting an absent id is not an error
func (r *IdentityRepository) Delete(ctx context.Context, id int64) error {
	query := `
		DELETE FROM identities
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	return nil
}

// ListEnrolled returns fully enrolled identities in ascending id order
func (r *IdentityRepository) ListEnrolled(ctx context.Context) ([]domain.EnrolledIdentity, error) {
	query := `
		SELECT id, name, email, embedding
		FROM identities
		WHERE embedding IS NOT NULL AND image_path IS NOT NULL
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enrolled identities: %w", err)
	}
	defer rows.Close()

	var enrolled []domain.EnrolledIdentity
	for rows.Next() {
		var (
			identity domain.EnrolledIdentity
			vec      *pgvector.Vector
		)

		if err := rows.Scan(&identity.ID, &identity.Name, &identity.Email, &vec); err != nil {
			return nil, fmt.Errorf("scan enrolled identity: %w", err)
		}

		identity.Embedding, err = toEmbedding(vec)
		if err != nil {
			return nil, fmt.Errorf("identity %d: %w", identity.ID, err)
		}

		enrolled = append(enrolled, identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolled identities: %w", err)
	}

	return enrolled, nil
}

// Count returns the number of fully enrolled identities. Provisional rows of
// in-flight enrollments are excluded.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM identities WHERE embedding IS NOT NULL AND image_path IS NOT NULL`

	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

func (r *IdentityRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	return nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var (
		identity  domain.Identity
		imagePath *string
		vec       *pgvector.Vector
	)

	err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.Email,
		&imagePath,
		&vec,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if imagePath != nil {
		identity.ImageReference = *imagePath
	}

	identity.Embedding, err = toEmbedding(vec)
	if err != nil {
		return nil, fmt.Errorf("identity %d: %w", identity.ID, err)
	}

	return &identity, nil
}

// toEmbedding maps a NULL column to the zero Embedding
func toEmbedding(vec *pgvector.Vector) (domain.Embedding, error) {
	if vec == nil || len(vec.Slice()) == 0 {
		return domain.Embedding{}, nil
	}
	return domain.EmbeddingFromFloat32(vec.Slice())
}
