package domain

import (
	"time"
)

// Identity representa uma pessoa cadastrada. Only fully enrolled identities
// (image reference and embedding set) survive a completed enrollment.
type Identity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	ImageReference string    `json:"-"`
	Embedding      Embedding `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (i *Identity) Enrolled() bool {
	return i.ImageReference != "" && !i.Embedding.IsZero()
}

// EnrolledIdentity is the projection scanned by the match engine.
type EnrolledIdentity struct {
	ID        int64
	Name      string
	Email     string
	Embedding Embedding
}
