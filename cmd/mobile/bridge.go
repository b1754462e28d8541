package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/propsnap/backend/internal/app"
	"github.com/propsnap/backend/internal/config"
	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/logging"
	"github.com/propsnap/backend/internal/models"
)

// The bridge holds one core per process. The host app owns connectivity and reports it
// through setOnline.
var (
	coreMu sync.Mutex
	core   *app.App

	lastErr string
	lastMu  sync.RWMutex
)

var errNotInitialized = apperrors.New(apperrors.ErrInternal, "core not initialized")

func setLastError(err error) {
	lastMu.Lock()
	defer lastMu.Unlock()
	if err == nil {
		lastErr = ""
		return
	}
	lastErr = err.Error()
}

func getLastError() string {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return lastErr
}

// openCore starts the core under dataDir. Calling it again is a no-op.
func openCore(dataDir, configPath string) error {
	coreMu.Lock()
	defer coreMu.Unlock()
	if core != nil {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
		cfg.PhotoDir = filepath.Join(dataDir, "photos")
	}
	logging.Init(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	a, err := app.New(cfg, app.Options{ManualConnectivity: true})
	if err != nil {
		return err
	}
	if err := a.Start(context.Background()); err != nil {
		a.Close()
		return err
	}
	core = a
	return nil
}

func closeCore() error {
	coreMu.Lock()
	defer coreMu.Unlock()
	if core == nil {
		return nil
	}
	err := core.Close()
	core = nil
	return err
}

func current() (*app.App, error) {
	coreMu.Lock()
	defer coreMu.Unlock()
	if core == nil {
		return nil, errNotInitialized
	}
	return core, nil
}

func toJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "failed to serialize", err)
	}
	return string(data), nil
}

func setOnline(online bool) error {
	a, err := current()
	if err != nil {
		return err
	}
	return a.SetOnline(online)
}

func capturePhoto(path, category, metadataJSON string) (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	var metadata map[string]string
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return "", apperrors.Wrap(apperrors.ErrInvalid, "metadata must be a JSON object of strings", err)
		}
	}
	p, err := a.Capture.CapturePhoto(context.Background(), path, category, metadata)
	if err != nil {
		return "", err
	}
	return toJSON(p)
}

func submitOrder(orderJSON string) (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	var order models.DraftOrder
	if err := json.Unmarshal([]byte(orderJSON), &order); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "invalid order JSON", err)
	}
	saved, err := a.Capture.SubmitOrder(context.Background(), &order)
	if err != nil {
		return "", err
	}
	return toJSON(saved)
}

func saveFloorplan(floorplanJSON string) (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	var fp models.Floorplan
	if err := json.Unmarshal([]byte(floorplanJSON), &fp); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "invalid floorplan JSON", err)
	}
	saved, err := a.Capture.SaveFloorplan(context.Background(), &fp)
	if err != nil {
		return "", err
	}
	return toJSON(saved)
}

func queueList() (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	items, err := a.Queue.List(context.Background())
	if err != nil {
		return "", err
	}
	if items == nil {
		return "[]", nil
	}
	return toJSON(items)
}

func queueStats() (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	overview, err := a.Capture.QueueOverview(context.Background())
	if err != nil {
		return "", err
	}
	return toJSON(overview)
}

func clearQueue() error {
	a, err := current()
	if err != nil {
		return err
	}
	return a.Queue.Clear(context.Background())
}

func syncNow() (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	result, err := a.Scheduler.DrainNow(context.Background())
	if err != nil {
		return "", err
	}
	return toJSON(result)
}

func login(token string) error {
	a, err := current()
	if err != nil {
		return err
	}
	return a.Session.Login(context.Background(), token)
}

func logout() error {
	a, err := current()
	if err != nil {
		return err
	}
	return a.Session.Logout(context.Background())
}

func notifications() (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	items, err := a.Notifications.List(context.Background())
	if err != nil {
		return "", err
	}
	if items == nil {
		return "[]", nil
	}
	return toJSON(items)
}

func markNotificationRead(id string) error {
	a, err := current()
	if err != nil {
		return err
	}
	return a.Notifications.MarkRead(context.Background(), id)
}
