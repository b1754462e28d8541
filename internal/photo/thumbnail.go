package photo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"

	"github.com/propsnap/backend/internal/logging"
)

// ThumbnailJob is a background thumbnail request.
type ThumbnailJob struct {
	SourcePath    string
	ThumbnailPath string
	Width         int
	Height        int
	CreatedAt     time.Time
}

// Thumbnailer renders thumbnails on a fixed pool of background workers and on demand.
type Thumbnailer struct {
	jobs      chan *ThumbnailJob
	workers   int
	renders   *semaphore.Weighted
	wg        sync.WaitGroup
	stopCh    chan struct{}
	mu        sync.Mutex
	isRunning bool
	stats     ThumbnailStats
}

// ThumbnailStats holds thumbnail generation statistics.
type ThumbnailStats struct {
	TotalProcessed int   `json:"total_processed"`
	SuccessCount   int   `json:"success_count"`
	FailureCount   int   `json:"failure_count"`
	PendingCount   int   `json:"pending_count"`
	AvgDurationMs  int64 `json:"avg_duration_ms"`
}

// NewThumbnailer creates a Thumbnailer with a bounded job buffer.
func NewThumbnailer(queueSize, workers int) *Thumbnailer {
	if queueSize <= 0 {
		queueSize = 64
	}
	if workers <= 0 {
		workers = 1
	}
	return &Thumbnailer{
		jobs:    make(chan *ThumbnailJob, queueSize),
		workers: workers,
		renders: semaphore.NewWeighted(int64(workers)),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the workers.
func (t *Thumbnailer) Start(ctx context.Context) {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = true
	t.mu.Unlock()

	logging.Info("Starting thumbnail workers", map[string]interface{}{
		"workers":    t.workers,
		"queue_size": cap(t.jobs),
	})

	for i := 0; i < t.workers; i++ {
		t.wg.Add(1)
		go t.worker(ctx)
	}
}

// Stop stops the workers and waits for the current jobs. Queued jobs are dropped.
func (t *Thumbnailer) Stop() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	t.mu.Unlock()

	close(t.stopCh)
	t.wg.Wait()

	stats := t.Stats()
	logging.Info("Thumbnail workers stopped", map[string]interface{}{
		"total_processed": stats.TotalProcessed,
		"failure_count":   stats.FailureCount,
	})
}

// Warm queues a thumbnail without blocking. Returns false when the workers are not
// running or the buffer is full.
func (t *Thumbnailer) Warm(sourcePath, thumbnailPath string, width, height int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isRunning {
		return false
	}

	job := &ThumbnailJob{
		SourcePath:    sourcePath,
		ThumbnailPath: thumbnailPath,
		Width:         width,
		Height:        height,
		CreatedAt:     time.Now(),
	}
	select {
	case t.jobs <- job:
		t.stats.PendingCount++
		return true
	default:
		logging.Debug("Thumbnail queue full, skipping warm-up", map[string]interface{}{"source_path": sourcePath})
		return false
	}
}

// Generate renders a thumbnail synchronously. At most workers calls render at once.
func (t *Thumbnailer) Generate(ctx context.Context, sourcePath, thumbnailPath string, width, height int) error {
	if err := t.renders.Acquire(ctx, 1); err != nil {
		return err
	}
	defer t.renders.Release(1)

	start := time.Now()
	err := renderThumbnail(ctx, sourcePath, thumbnailPath, width, height)
	t.record(err, time.Since(start), false)
	return err
}

func (t *Thumbnailer) worker(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case job := <-t.jobs:
			start := time.Now()
			err := renderThumbnail(ctx, job.SourcePath, job.ThumbnailPath, job.Width, job.Height)
			t.record(err, time.Since(start), true)
			if err != nil {
				logging.Error("Thumbnail generation failed", err, map[string]interface{}{
					"source_path": job.SourcePath,
				})
			}
		}
	}
}

func (t *Thumbnailer) record(err error, d time.Duration, queued bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if queued {
		t.stats.PendingCount--
	}
	t.stats.TotalProcessed++
	if err != nil {
		t.stats.FailureCount++
	} else {
		t.stats.SuccessCount++
	}
	total := t.stats.AvgDurationMs*int64(t.stats.TotalProcessed-1) + d.Milliseconds()
	t.stats.AvgDurationMs = total / int64(t.stats.TotalProcessed)
}

// Stats returns a copy of the statistics.
func (t *Thumbnailer) Stats() ThumbnailStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// IsRunning returns whether the workers are running.
func (t *Thumbnailer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

// renderThumbnail scales the source to fit within width x height, keeping the aspect
// ratio, and writes it as JPEG. The file is written under a temp name and renamed so
// readers never see a partial thumbnail.
func renderThumbnail(ctx context.Context, sourcePath, thumbnailPath string, width, height int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := load(sourcePath)
	if err != nil {
		return err
	}
	thumb := imaging.Fit(img, width, height, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(thumbnailPath), 0755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	tmp := thumbnailPath + ".tmp.jpg"
	if err := imaging.Save(thumb, tmp, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := os.Rename(tmp, thumbnailPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move thumbnail: %w", err)
	}
	return nil
}
