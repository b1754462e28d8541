// Package photo manages captured photo files and their index.
//
// Saving is two-phase so a crash never leaves an indexed photo without its file: a
// pending row pointing at a temp path is inserted first, the copy is synced and renamed,
// and only then is the row committed. RecoverPending discards whatever a crash left
// between the two phases.
package photo

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/propsnap/backend/internal/db"
	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/logging"
	"github.com/propsnap/backend/internal/models"
	"github.com/propsnap/backend/internal/uuid"
)

// Thumbnail bounds.
const (
	DefaultThumbnailSize = 320
	MaxThumbnailSize     = 2048
)

// DefaultCategory is used when a photo is saved without one.
const DefaultCategory = "general"

// Service saves, lists and removes captured photos.
type Service struct {
	repo   db.PhotoRepository
	files  *FileStore
	thumbs *Thumbnailer
	mu     sync.Mutex
}

// NewService creates a Service storing files under dir.
func NewService(repo db.PhotoRepository, dir string) (*Service, error) {
	files, err := NewFileStore(dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to prepare photo directory", err)
	}
	return &Service{
		repo:   repo,
		files:  files,
		thumbs: NewThumbnailer(64, 2),
	}, nil
}

// Start starts background thumbnail warm-up.
func (s *Service) Start(ctx context.Context) {
	s.thumbs.Start(ctx)
}

// Stop stops background thumbnail warm-up.
func (s *Service) Stop() {
	s.thumbs.Stop()
}

// IsRunning reports whether thumbnail warm-up workers are running.
func (s *Service) IsRunning() bool {
	return s.thumbs.IsRunning()
}

// Files returns the underlying file store.
func (s *Service) Files() *FileStore {
	return s.files
}

// SavePhoto copies the image at sourcePath into the managed directory and indexes it.
func (s *Service) SavePhoto(ctx context.Context, sourcePath, category string, metadata map[string]string) (*models.Photo, error) {
	if sourcePath == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "source path is required")
	}
	if category == "" {
		category = DefaultCategory
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "source image not found", err)
		}
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to open source image", err)
	}
	defer src.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewOrdered()
	ext := extension(sourcePath)
	tempPath := s.files.TempPath(id, ext)

	p := &models.Photo{
		ID:       models.UUID(id),
		Path:     tempPath,
		Category: category,
		Metadata: metadata,
		State:    models.PhotoStatePending,
	}
	if err := s.repo.InsertPhoto(ctx, p); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to index photo", err)
	}

	// From here on a failure must discard the pending row and the temp file.
	discard := func(cause error) {
		cleanupCtx := context.WithoutCancel(ctx)
		if _, err := s.repo.DeletePhoto(cleanupCtx, id); err != nil {
			logging.Error("Failed to discard pending photo", err, map[string]interface{}{"photo_id": id})
		}
		if err := s.files.Remove(tempPath); err != nil {
			logging.Error("Failed to remove temp photo", err, map[string]interface{}{"path": tempPath})
		}
		logging.Warn("Photo save aborted", map[string]interface{}{"photo_id": id, "error": cause.Error()})
	}

	size, err := s.files.WriteTemp(tempPath, src)
	if err != nil {
		discard(err)
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to copy photo", err)
	}

	info, err := Probe(tempPath)
	if err != nil {
		discard(err)
		return nil, apperrors.Wrap(apperrors.ErrImageDecode, "source is not a supported image", err)
	}

	finalPath := s.files.FinalPath(id, ext)
	if err := s.files.Promote(tempPath, finalPath); err != nil {
		discard(err)
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to store photo", err)
	}

	p.Path = finalPath
	p.Width = info.Width
	p.Height = info.Height
	p.Format = info.Format
	p.SizeBytes = size
	if err := s.repo.CommitPhoto(ctx, p); err != nil {
		discard(err)
		s.files.Remove(finalPath)
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to commit photo", err)
	}

	s.thumbs.Warm(finalPath, s.files.ThumbnailPath(id, DefaultThumbnailSize, DefaultThumbnailSize),
		DefaultThumbnailSize, DefaultThumbnailSize)

	logging.Info("Photo saved", map[string]interface{}{
		"photo_id": id,
		"category": category,
		"bytes":    size,
	})
	return p, nil
}

// ListAll returns committed photos, oldest first.
func (s *Service) ListAll(ctx context.Context) ([]*models.Photo, error) {
	photos, err := s.repo.ListPhotos(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list photos", err)
	}
	if photos == nil {
		photos = []*models.Photo{}
	}
	return photos, nil
}

// Get returns a committed photo.
func (s *Service) Get(ctx context.Context, id string) (*models.Photo, error) {
	p, err := s.repo.GetPhoto(ctx, id)
	if errors.Is(err, db.ErrNotFound) || (err == nil && !p.Committed()) {
		return nil, apperrors.New(apperrors.ErrNotFound, "photo not found: "+id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read photo", err)
	}
	return p, nil
}

// MarkUploaded sets the uploaded flag.
func (s *Service) MarkUploaded(ctx context.Context, id string) error {
	err := s.repo.MarkPhotoUploaded(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return apperrors.New(apperrors.ErrNotFound, "photo not found: "+id)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to mark photo uploaded", err)
	}
	return nil
}

// Delete removes a photo's row, file, enhanced copies and cached thumbnails. A queued
// upload of the photo is not touched; CaptureService.DeletePhoto also dequeues it.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.repo.GetPhoto(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return apperrors.New(apperrors.ErrNotFound, "photo not found: "+id)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to read photo", err)
	}

	if _, err := s.repo.DeletePhoto(ctx, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete photo", err)
	}
	if err := s.files.Remove(p.Path); err != nil {
		logging.Warn("Failed to remove photo file", map[string]interface{}{"photo_id": id, "error": err.Error()})
	}
	if err := s.files.RemoveEnhanced(p.Path); err != nil {
		logging.Warn("Failed to remove enhanced copies", map[string]interface{}{"photo_id": id, "error": err.Error()})
	}
	if err := s.files.RemoveThumbnails(id); err != nil {
		logging.Warn("Failed to remove thumbnails", map[string]interface{}{"photo_id": id, "error": err.Error()})
	}
	return nil
}

// RecoverPending discards pending rows older than grace along with their temp files, then
// sweeps orphaned temp files of the same age. Returns the number of rows discarded.
func (s *Service) RecoverPending(ctx context.Context, grace time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-grace)
	pending, err := s.repo.ListPendingPhotos(ctx, cutoff.UnixMilli()+1)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending photos", err)
	}

	recovered := 0
	for _, p := range pending {
		if err := s.files.Remove(p.Path); err != nil {
			logging.Warn("Failed to remove temp photo", map[string]interface{}{"path": p.Path, "error": err.Error()})
		}
		if _, err := s.repo.DeletePhoto(ctx, string(p.ID)); err != nil {
			return recovered, apperrors.Wrap(apperrors.ErrStorage, "failed to discard pending photo", err)
		}
		recovered++
	}

	// Rows younger than grace keep their temp files.
	keep := make(map[string]bool)
	if young, err := s.repo.ListPendingPhotos(ctx, time.Now().UnixMilli()+1); err == nil {
		for _, p := range young {
			keep[p.Path] = true
		}
	}
	swept, _, err := s.files.SweepTemp(cutoff, keep)
	if err != nil {
		logging.Warn("Failed to sweep temp photos", map[string]interface{}{"error": err.Error()})
	}

	if recovered > 0 || swept > 0 {
		logging.Info("Recovered pending photos", map[string]interface{}{
			"rows":       recovered,
			"temp_files": swept,
		})
	}
	return recovered, nil
}

// Thumbnail returns the path of a JPEG thumbnail of the photo fitting within width x
// height, rendering and caching it if needed.
func (s *Service) Thumbnail(ctx context.Context, id string, width, height int) (string, error) {
	if width <= 0 || height <= 0 || width > MaxThumbnailSize || height > MaxThumbnailSize {
		return "", apperrors.New(apperrors.ErrInvalid, "thumbnail size out of range")
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	thumbPath := s.files.ThumbnailPath(id, width, height)
	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}

	if err := s.thumbs.Generate(ctx, p.Path, thumbPath, width, height); err != nil {
		return "", apperrors.Wrap(apperrors.ErrImageDecode, "failed to render thumbnail", err)
	}
	return thumbPath, nil
}

// EnhancePhoto writes an adjusted copy of a stored photo and returns its path.
func (s *Service) EnhancePhoto(ctx context.Context, id string, adj Adjustments) (string, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return Enhance(ctx, p.Path, adj)
}

// ThumbnailStats returns thumbnail generation statistics.
func (s *Service) ThumbnailStats() ThumbnailStats {
	return s.thumbs.Stats()
}
