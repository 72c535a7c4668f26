package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/camserver/internal/device"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

const cameraJSON = `{
  "cameras": [
    {"camera_index": 5, "camera_name": "front", "width": 1280, "height": 720, "rotate": 90, "flip": true},
    {"camera_index": 0, "camera_name": "back", "width": 640, "height": 480, "rotate": 0, "flip": false}
  ]
}`

func writeCameras(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "CameraInfo.json")
	require.NoError(t, os.WriteFile(path, []byte(cameraJSON), 0644))
	return path
}

func TestLookupByIndex(t *testing.T) {
	store := NewCameraStore(writeCameras(t), LookupByIndex)

	cam, ok := store.LookupCameraByIndex(5)
	require.True(t, ok)
	assert.Equal(t, CameraIdentity{Index: 5, Name: "front", Width: 1280, Height: 720, Rotate: 90, Flip: true}, cam)

	cam, ok = store.LookupCameraByIndex(0)
	require.True(t, ok)
	assert.Equal(t, "back", cam.Name)

	_, ok = store.LookupCameraByIndex(1)
	assert.False(t, ok)
}

func TestLookupByPosition(t *testing.T) {
	store := NewCameraStore(writeCameras(t), LookupByPosition)

	cam, ok := store.LookupCameraByIndex(0)
	require.True(t, ok)
	assert.Equal(t, "front", cam.Name)

	cam, ok = store.LookupCameraByIndex(1)
	require.True(t, ok)
	assert.Equal(t, "back", cam.Name)

	_, ok = store.LookupCameraByIndex(2)
	assert.False(t, ok)
	_, ok = store.LookupCameraByIndex(-1)
	assert.False(t, ok)
}

func TestLookupMissingDocument(t *testing.T) {
	store := NewCameraStore(filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Equal(t, LookupByIndex, store.Mode())
	assert.False(t, store.Exists())

	_, ok := store.LookupCameraByIndex(0)
	assert.False(t, ok)
	assert.ErrorIs(t, store.Err(), os.ErrNotExist)
}

func TestStoreReload(t *testing.T) {
	path := writeCameras(t)
	store := NewCameraStore(path, LookupByIndex)
	_, ok := store.LookupCameraByIndex(7)
	require.False(t, ok)

	require.NoError(t, SaveCameras(path, &CameraDocument{Cameras: []CameraIdentity{{Index: 7, Name: "new"}}}))
	_, ok = store.LookupCameraByIndex(7)
	assert.False(t, ok)

	store.Reload()
	cam, ok := store.LookupCameraByIndex(7)
	require.True(t, ok)
	assert.Equal(t, "new", cam.Name)
}

func TestSaveCamerasIndentsAndCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Config", "CameraInfo.json")
	require.NoError(t, SaveCameras(path, &CameraDocument{Cameras: []CameraIdentity{{Index: 0, Name: "cam", Width: 1280, Height: 720}}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"cameras\": [\n    {\n      \"camera_index\": 0,"))

	doc, err := LoadCameras(path)
	require.NoError(t, err)
	assert.Equal(t, "cam", doc.Cameras[0].Name)
}

func TestGenerateCamerasByIndexRules(t *testing.T) {
	entries := []device.Entry{
		{Description: "Integrated Camera", Name: `@device_pnp_\\?\usb#int\global`},
		{Description: "USB Camera1", Name: `@device_pnp_\\?\usb#b\global`},
		{Description: "USB Camera0", Name: `@device_pnp_\\?\usb#a\global`},
		{Description: "Capture Card", Name: `@device_pnp_\\?\pci#c\global`},
	}
	gen := Defaults().Generate

	doc := GenerateCameras(entries, gen, LookupByIndex, platform.Windows())
	require.Len(t, doc.Cameras, 4)

	assert.Equal(t, CameraIdentity{Index: 2, Name: `usb#int`, Width: 1280, Height: 720}, doc.Cameras[0])
	assert.Equal(t, 1, doc.Cameras[1].Index)
	assert.Equal(t, 0, doc.Cameras[2].Index)
	assert.Equal(t, `usb#a`, doc.Cameras[2].Name)
	assert.Equal(t, 3, doc.Cameras[3].Index)
}

func TestGenerateCamerasByPosition(t *testing.T) {
	entries := []device.Entry{
		{Description: "USB Camera1", Name: "/dev/video0"},
		{Description: "USB Camera0", Name: "/dev/video2"},
	}
	doc := GenerateCameras(entries, Defaults().Generate, LookupByPosition, platform.Linux())
	require.Len(t, doc.Cameras, 2)
	assert.Equal(t, 0, doc.Cameras[0].Index)
	assert.Equal(t, "/dev/video0", doc.Cameras[0].Name)
	assert.Equal(t, 1, doc.Cameras[1].Index)
}

func TestGenerateCamerasEmpty(t *testing.T) {
	doc := GenerateCameras(nil, Defaults().Generate, LookupByIndex, platform.Linux())
	assert.NotNil(t, doc.Cameras)
	assert.Empty(t, doc.Cameras)
}
