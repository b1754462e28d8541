// Package db provides CRUD repository operations for PropSnap data models.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/propsnap/backend/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// syncedFlag names the domain column flipped when a queue item of a given type is
// delivered. Queue types without an entry have no domain record.
var syncedFlag = map[string]struct{ table, column string }{
	"photo":     {"photos", "uploaded"},
	"order":     {"draft_orders", "synced"},
	"floorplan": {"floorplans", "synced"},
}

// Repository provides CRUD operations for all models.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// If another goroutine already stored one, use it and close ours
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

// =====================================================
// Upload Queue Operations
// =====================================================

const queueColumns = `item_type, item_id, payload, attempts, last_error, created_at, updated_at`

func scanQueueRecord(row interface{ Scan(...interface{}) error }) (*models.QueueRecord, error) {
	var rec models.QueueRecord
	var payload string
	if err := row.Scan(&rec.Type, &rec.ID, &payload, &rec.Attempts, &rec.LastError,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}

// UpsertQueueItem inserts a queue row or overwrites the payload and created_at of an
// existing (type, id) row. attempts and last_error of an existing row are preserved and
// written back into rec. updated_at strictly increases on every overwrite, so it
// identifies the payload version a reader snapshotted.
func (r *Repository) UpsertQueueItem(ctx context.Context, rec *models.QueueRecord) error {
	now := models.NowMillis()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO upload_queue (`+queueColumns+`)
	VALUES (?, ?, ?, 0, '', ?, ?)
	ON CONFLICT(item_type, item_id) DO UPDATE SET
		payload = excluded.payload,
		created_at = excluded.created_at,
		updated_at = MAX(excluded.updated_at, upload_queue.updated_at + 1)
	`, rec.Type, rec.ID, string(rec.Payload), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert queue item: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		"SELECT attempts, last_error, updated_at FROM upload_queue WHERE item_type = ? AND item_id = ?",
		rec.Type, rec.ID).Scan(&rec.Attempts, &rec.LastError, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to read back queue item: %w", err)
	}

	return tx.Commit()
}

// GetQueueItem retrieves a queue row by (type, id).
func (r *Repository) GetQueueItem(ctx context.Context, itemType, id string) (*models.QueueRecord, error) {
	stmt, err := r.PrepareStmt(ctx, "SELECT "+queueColumns+" FROM upload_queue WHERE item_type = ? AND item_id = ?")
	if err != nil {
		return nil, err
	}
	rec, err := scanQueueRecord(stmt.QueryRowContext(ctx, itemType, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListQueueItems returns every queue row.
func (r *Repository) ListQueueItems(ctx context.Context) ([]*models.QueueRecord, error) {
	stmt, err := r.PrepareStmt(ctx, "SELECT "+queueColumns+" FROM upload_queue ORDER BY created_at, item_type, item_id")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.QueueRecord
	for rows.Next() {
		rec, err := scanQueueRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// IncrementQueueAttempts bumps the attempt counter of a queue row and records the
// delivery error. Returns the new attempt count.
func (r *Repository) IncrementQueueAttempts(ctx context.Context, itemType, id, lastError string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
	UPDATE upload_queue SET attempts = attempts + 1, last_error = ?, updated_at = ?
	WHERE item_type = ? AND item_id = ?
	RETURNING attempts
	`, lastError, models.NowMillis(), itemType, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	return attempts, nil
}

// CompleteQueueItem deletes a queue row and flags its domain record synced in the same
// transaction. A non-zero updatedAt restricts the delete to the row version carrying
// that updated_at. Returns false when no matching row existed, in which case nothing
// changes.
func (r *Repository) CompleteQueueItem(ctx context.Context, itemType, id string, updatedAt int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "DELETE FROM upload_queue WHERE item_type = ? AND item_id = ?"
	args := []interface{}{itemType, id}
	if updatedAt != 0 {
		query += " AND updated_at = ?"
		args = append(args, updatedAt)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if flag, ok := syncedFlag[itemType]; ok {
		query := fmt.Sprintf("UPDATE %s SET %s = 1, updated_at = ? WHERE id = ?", flag.table, flag.column)
		if _, err := tx.ExecContext(ctx, query, models.NowMillis(), id); err != nil {
			return false, fmt.Errorf("failed to mark %s %s synced: %w", itemType, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// ResetQueueItem deletes and re-adds a queue row with zero attempts, keeping its
// payload and creation time. Returns false when no row existed.
func (r *Repository) ResetQueueItem(ctx context.Context, itemType, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanQueueRecord(tx.QueryRowContext(ctx,
		"SELECT "+queueColumns+" FROM upload_queue WHERE item_type = ? AND item_id = ?", itemType, id))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM upload_queue WHERE item_type = ? AND item_id = ?", itemType, id); err != nil {
		return false, fmt.Errorf("failed to delete queue item: %w", err)
	}
	updated := models.NowMillis()
	if updated <= rec.UpdatedAt {
		updated = rec.UpdatedAt + 1
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO upload_queue (`+queueColumns+`) VALUES (?, ?, ?, 0, '', ?, ?)
	`, rec.Type, rec.ID, string(rec.Payload), rec.CreatedAt, updated)
	if err != nil {
		return false, fmt.Errorf("failed to re-add queue item: %w", err)
	}

	return true, tx.Commit()
}

// ClearQueue deletes every queue row without touching domain sync flags.
func (r *Repository) ClearQueue(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM upload_queue")
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", err)
	}
	return res.RowsAffected()
}

// =====================================================
// Photo Operations
// =====================================================

const photoColumns = `id, path, category, metadata, uploaded, state, width, height, format, size_bytes, created_at, updated_at`

func scanPhoto(row interface{ Scan(...interface{}) error }) (*models.Photo, error) {
	var p models.Photo
	var metadata string
	var state string
	if err := row.Scan(&p.ID, &p.Path, &p.Category, &metadata, &p.Uploaded, &state,
		&p.Width, &p.Height, &p.Format, &p.SizeBytes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.State = models.PhotoState(state)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
			return nil, fmt.Errorf("photo %s: malformed metadata: %w", p.ID, err)
		}
	}
	return &p, nil
}

func marshalJSON(v interface{}, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

// InsertPhoto inserts a photo index row. The caller sets ID, Path and State.
func (r *Repository) InsertPhoto(ctx context.Context, p *models.Photo) error {
	now := models.NowMillis()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	metadata, err := marshalJSON(p.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
	INSERT INTO photos (`+photoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Path, p.Category, metadata, p.Uploaded, string(p.State),
		p.Width, p.Height, p.Format, p.SizeBytes, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	return nil
}

// CommitPhoto moves a pending photo row to committed with its final file details.
func (r *Repository) CommitPhoto(ctx context.Context, p *models.Photo) error {
	p.State = models.PhotoStateCommitted
	p.UpdatedAt = models.NowMillis()

	metadata, err := marshalJSON(p.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
	UPDATE photos SET path = ?, metadata = ?, state = ?, width = ?, height = ?, format = ?,
		size_bytes = ?, updated_at = ?
	WHERE id = ? AND state = 'pending'
	`, p.Path, metadata, string(p.State), p.Width, p.Height, p.Format, p.SizeBytes, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to commit photo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPhoto retrieves a photo by ID regardless of state.
func (r *Repository) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	p, err := scanPhoto(r.db.QueryRowContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPhotos returns committed photos, oldest first.
func (r *Repository) ListPhotos(ctx context.Context) ([]*models.Photo, error) {
	return r.queryPhotos(ctx, "SELECT "+photoColumns+" FROM photos WHERE state = 'committed' ORDER BY created_at, id")
}

// ListPendingPhotos returns pending photos created before the given unix-millisecond time.
func (r *Repository) ListPendingPhotos(ctx context.Context, createdBefore int64) ([]*models.Photo, error) {
	return r.queryPhotos(ctx,
		"SELECT "+photoColumns+" FROM photos WHERE state = 'pending' AND created_at < ? ORDER BY created_at",
		createdBefore)
}

func (r *Repository) queryPhotos(ctx context.Context, query string, args ...interface{}) ([]*models.Photo, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []*models.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// MarkPhotoUploaded sets the uploaded flag on a photo.
func (r *Repository) MarkPhotoUploaded(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE photos SET uploaded = 1, updated_at = ? WHERE id = ?", models.NowMillis(), id)
	if err != nil {
		return fmt.Errorf("failed to mark photo uploaded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePhoto removes a photo row. Returns false when it did not exist.
func (r *Repository) DeletePhoto(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM photos WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete photo: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =====================================================
// Draft Order Operations
// =====================================================

const orderColumns = `id, property_address, package_code, add_ons, photo_ids, notes, contact_email, synced, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.DraftOrder, error) {
	var o models.DraftOrder
	var addOns, photoIDs string
	if err := row.Scan(&o.ID, &o.PropertyAddress, &o.PackageCode, &addOns, &photoIDs,
		&o.Notes, &o.ContactEmail, &o.Synced, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(addOns), &o.AddOns); err != nil {
		return nil, fmt.Errorf("order %s: malformed add_ons: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(photoIDs), &o.PhotoIDs); err != nil {
		return nil, fmt.Errorf("order %s: malformed photo_ids: %w", o.ID, err)
	}
	return &o, nil
}

// SaveOrder inserts or replaces a draft order. Saving resets the synced flag: an edited
// order must be delivered again.
func (r *Repository) SaveOrder(ctx context.Context, o *models.DraftOrder) error {
	now := models.NowMillis()
	if o.CreatedAt == 0 {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Synced = false

	addOns, err := marshalJSON(o.AddOns, "[]")
	if err != nil {
		return err
	}
	photoIDs, err := marshalJSON(o.PhotoIDs, "[]")
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
	INSERT INTO draft_orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		property_address = excluded.property_address,
		package_code = excluded.package_code,
		add_ons = excluded.add_ons,
		photo_ids = excluded.photo_ids,
		notes = excluded.notes,
		contact_email = excluded.contact_email,
		synced = 0,
		updated_at = excluded.updated_at
	`, o.ID, o.PropertyAddress, o.PackageCode, addOns, photoIDs, o.Notes, o.ContactEmail,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// GetOrder retrieves a draft order by ID.
func (r *Repository) GetOrder(ctx context.Context, id string) (*models.DraftOrder, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM draft_orders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// ListOrders returns draft orders, newest first.
func (r *Repository) ListOrders(ctx context.Context) ([]*models.DraftOrder, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+orderColumns+" FROM draft_orders ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.DraftOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// =====================================================
// Floorplan Operations
// =====================================================

const floorplanColumns = `id, property_address, rooms, notes, synced, created_at, updated_at`

func scanFloorplan(row interface{ Scan(...interface{}) error }) (*models.Floorplan, error) {
	var f models.Floorplan
	var rooms string
	if err := row.Scan(&f.ID, &f.PropertyAddress, &rooms, &f.Notes, &f.Synced, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rooms), &f.Rooms); err != nil {
		return nil, fmt.Errorf("floorplan %s: malformed rooms: %w", f.ID, err)
	}
	return &f, nil
}

// SaveFloorplan inserts or replaces a floorplan and resets its synced flag.
func (r *Repository) SaveFloorplan(ctx context.Context, f *models.Floorplan) error {
	now := models.NowMillis()
	if f.CreatedAt == 0 {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	f.Synced = false

	rooms, err := marshalJSON(f.Rooms, "[]")
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
	INSERT INTO floorplans (`+floorplanColumns+`) VALUES (?, ?, ?, ?, 0, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		property_address = excluded.property_address,
		rooms = excluded.rooms,
		notes = excluded.notes,
		synced = 0,
		updated_at = excluded.updated_at
	`, f.ID, f.PropertyAddress, rooms, f.Notes, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save floorplan: %w", err)
	}
	return nil
}

// GetFloorplan retrieves a floorplan by ID.
func (r *Repository) GetFloorplan(ctx context.Context, id string) (*models.Floorplan, error) {
	f, err := scanFloorplan(r.db.QueryRowContext(ctx, "SELECT "+floorplanColumns+" FROM floorplans WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// ListFloorplans returns floorplans, newest first.
func (r *Repository) ListFloorplans(ctx context.Context) ([]*models.Floorplan, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+floorplanColumns+" FROM floorplans ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.Floorplan
	for rows.Next() {
		f, err := scanFloorplan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, f)
	}
	return plans, rows.Err()
}
