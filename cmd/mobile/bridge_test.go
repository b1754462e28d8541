package main

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/models"
	syncpkg "github.com/propsnap/backend/internal/sync"
)

func setupCore(t *testing.T) {
	t.Helper()
	t.Setenv("PROPSNAP_SECRET", "bridge-test")
	t.Setenv("PROPSNAP_LOG_LEVEL", "error")
	require.NoError(t, openCore(t.TempDir(), ""))
	t.Cleanup(func() { closeCore() })
}

func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 6, 6))
	img.Set(2, 2, color.Black)
	path := filepath.Join(t.TempDir(), "shot.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestBridge_NotInitialized(t *testing.T) {
	_, err := queueList()
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, closeCore())
}

func TestBridge_CaptureAndQueue(t *testing.T) {
	setupCore(t)

	out, err := capturePhoto(writePNG(t), "exterior", `{"angle":"north"}`)
	require.NoError(t, err)
	var p models.Photo
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "north", p.Metadata["angle"])

	out, err = submitOrder(`{"property_address":"9 Bay Rd","package_code":"STD","photo_ids":["` + string(p.ID) + `"]}`)
	require.NoError(t, err)
	assert.Contains(t, out, "9 Bay Rd")

	_, err = saveFloorplan(`{"property_address":"9 Bay Rd","rooms":[{"name":"Hall","width_m":2,"length_m":2}]}`)
	require.NoError(t, err)

	out, err = queueList()
	require.NoError(t, err)
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Len(t, items, 3)

	out, err = queueStats()
	require.NoError(t, err)
	assert.Contains(t, out, `"pending":3`)

	require.NoError(t, clearQueue())
	out, err = queueList()
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestBridge_InvalidInput(t *testing.T) {
	setupCore(t)

	_, err := capturePhoto(writePNG(t), "", "not json")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))

	_, err = submitOrder("{")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))

	_, err = submitOrder(`{"package_code":"STD"}`)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestBridge_SyncNowOffline(t *testing.T) {
	setupCore(t)

	_, err := syncNow()
	assert.ErrorIs(t, err, syncpkg.ErrOffline)

	require.NoError(t, setOnline(true))
	out, err := syncNow()
	require.NoError(t, err)
	assert.Contains(t, out, `"attempted":0`)
}

func TestBridge_SessionAndNotifications(t *testing.T) {
	setupCore(t)

	assert.Error(t, login(""))
	require.NoError(t, login("tok"))
	require.NoError(t, logout())

	out, err := notifications()
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	err = markNotificationRead("missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestBridge_LastError(t *testing.T) {
	setLastError(apperrors.New(apperrors.ErrInvalid, "boom"))
	assert.Contains(t, getLastError(), "boom")
	setLastError(nil)
	assert.Empty(t, getLastError())
}
