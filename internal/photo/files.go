package photo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tempDirName  = ".tmp"
	thumbDirName = ".thumbs"
	tempSuffix   = ".part"
)

// FileStore lays out photo files under a base directory: committed photos at
// <base>/<id><ext>, in-progress copies under <base>/.tmp and cached thumbnails under
// <base>/.thumbs.
type FileStore struct {
	baseDir  string
	tempDir  string
	thumbDir string
}

// NewFileStore creates the directory layout if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	s := &FileStore{
		baseDir:  baseDir,
		tempDir:  filepath.Join(baseDir, tempDirName),
		thumbDir: filepath.Join(baseDir, thumbDirName),
	}
	for _, dir := range []string{s.baseDir, s.tempDir, s.thumbDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create photo directory: %w", err)
		}
	}
	return s, nil
}

// BaseDir returns the managed directory.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// TempPath returns the in-progress path for id.
func (s *FileStore) TempPath(id, ext string) string {
	return filepath.Join(s.tempDir, id+ext+tempSuffix)
}

// FinalPath returns the committed path for id.
func (s *FileStore) FinalPath(id, ext string) string {
	return filepath.Join(s.baseDir, id+ext)
}

// ThumbnailPath returns the cache path for a thumbnail of id bounded by width x height.
func (s *FileStore) ThumbnailPath(id string, width, height int) string {
	return filepath.Join(s.thumbDir, fmt.Sprintf("%s_%dx%d.jpg", id, width, height))
}

// WriteTemp copies r to tempPath and syncs it to disk. Returns the number of bytes written.
func (s *FileStore) WriteTemp(tempPath string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to read file data: file may be corrupted or incomplete: %w", err)
	}
	if size == 0 {
		f.Close()
		return 0, fmt.Errorf("invalid file: empty file (0 bytes)")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	return size, nil
}

// Promote renames a synced temp file to its final path.
func (s *FileStore) Promote(tempPath, finalPath string) error {
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("failed to move file to storage: %w", err)
	}
	return nil
}

// Remove deletes a file. A missing file is not an error.
func (s *FileStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// RemoveThumbnails deletes every cached thumbnail of id.
func (s *FileStore) RemoveThumbnails(id string) error {
	matches, err := filepath.Glob(filepath.Join(s.thumbDir, id+"_*.jpg"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := s.Remove(m); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEnhanced deletes every enhanced copy Enhance wrote next to path.
func (s *FileStore) RemoveEnhanced(path string) error {
	if path == "" {
		return nil
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), base+"_enhanced_*.jpg"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := s.Remove(m); err != nil {
			return err
		}
	}
	return nil
}

// SweepTemp removes in-progress files last modified before cutoff whose path is not in
// keep. Returns the number of files removed and the bytes freed.
func (s *FileStore) SweepTemp(cutoff time.Time, keep map[string]bool) (removed int, freedBytes int64, err error) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read temp directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if keep[path] {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
			freedBytes += info.Size()
		}
	}
	return removed, freedBytes, nil
}

// FileStats describes disk usage of the managed directory.
type FileStats struct {
	Photos     int   `json:"photos"`
	PhotoBytes int64 `json:"photo_bytes"`
	Temp       int   `json:"temp"`
	Thumbnails int   `json:"thumbnails"`
}

// Stats walks the managed directory.
func (s *FileStore) Stats() (*FileStats, error) {
	stats := &FileStats{}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stats.Photos++
		if info, err := entry.Info(); err == nil {
			stats.PhotoBytes += info.Size()
		}
	}

	stats.Temp = countFiles(s.tempDir)
	stats.Thumbnails = countFiles(s.thumbDir)
	return stats, nil
}

func countFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}
