package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

const imageFileName = "face.jpg"

var ErrEmptyImage = errors.New("image is empty")

// FileStore keeps one image per identity under <root>/user_<id>/face.jpg
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("image store root must not be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve image store root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create image store root: %w", err)
	}

	return &FileStore{root: abs}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

// Save writes through a temp file and rename so readers never see a partial image
func (s *FileStore) Save(ctx context.Context, identityID int64, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, "user_"+strconv.FormatInt(identityID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create identity directory: %w", err)
	}

	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, image, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write image: %w", err)
	}

	ref := filepath.Join(dir, imageFileName)
	if err := os.Rename(tmp, ref); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit image: %w", err)
	}

	return ref, nil
}

// Remove deletes the image and its directory once empty. Missing files are not an error.
func (s *FileStore) Remove(_ context.Context, ref string) error {
	if ref == "" {
		return nil
	}

	if !s.owns(ref) {
		return fmt.Errorf("image reference %q is outside store root", ref)
	}

	if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}

	dir := filepath.Dir(ref)
	if dir == s.root {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read identity directory: %w", err)
	}
	if len(entries) == 0 {
		if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove identity directory: %w", err)
		}
	}

	return nil
}

func (s *FileStore) owns(ref string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(ref))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
