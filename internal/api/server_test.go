package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/camserver/internal/camera"
	"github.com/bryanchriswhite/camserver/internal/config"
	"github.com/bryanchriswhite/camserver/internal/output"
)

type fakeCamera struct {
	mu      sync.Mutex
	active  bool
	img     *image.RGBA
	seq     uint64
	rotates []int
}

func (c *fakeCamera) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *fakeCamera) setActive(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = v
}

func (c *fakeCamera) GetImage(rotate int) (*image.RGBA, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotates = append(c.rotates, rotate)
	if c.img == nil {
		return nil, false
	}
	cp := image.NewRGBA(c.img.Bounds())
	copy(cp.Pix, c.img.Pix)
	return cp, true
}

func (c *fakeCamera) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *fakeCamera) Info() camera.Info {
	return camera.Info{
		Identity:    config.CameraIdentity{Index: 2, Name: "cam"},
		Active:      c.IsActive(),
		ContextInfo: map[string]string{"codec": "h264"},
	}
}

type fakeDetector struct {
	faces []image.Rectangle
	err   error
}

func (d *fakeDetector) Detect(img image.Image) ([]image.Rectangle, error) { return d.faces, d.err }

func gray(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{128, 128, 128, 255}), image.Point{}, draw.Src)
	return img
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeBase64JPEG(t *testing.T, body string) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(body)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestStatus(t *testing.T) {
	cam := &fakeCamera{}
	h := NewServer(cam, Options{Logger: zerolog.Nop()}).Handler()

	rec := do(t, h, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":false}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "close", rec.Header().Get("Connection"))

	cam.setActive(true)
	assert.JSONEq(t, `{"status":true}`, do(t, h, "/status").Body.String())
}

func TestCameraEmptyWithoutFrame(t *testing.T) {
	h := NewServer(&fakeCamera{}, Options{Logger: zerolog.Nop()}).Handler()
	rec := do(t, h, "/camera")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestCameraRotateParameter(t *testing.T) {
	cam := &fakeCamera{img: gray(8, 6)}
	h := NewServer(cam, Options{Logger: zerolog.Nop()}).Handler()

	for _, q := range []string{"/camera", "/camera?rotate=90", "/camera?rotate=45", "/camera?rotate=abc", "/camera?rotate=270"} {
		rec := do(t, h, q)
		require.Equal(t, http.StatusOK, rec.Code)
		img := decodeBase64JPEG(t, rec.Body.String())
		assert.Equal(t, 8, img.Bounds().Dx())
	}
	assert.Equal(t, []int{0, 90, 0, 0, 270}, cam.rotates)
}

func TestTakePhotoWithoutFace(t *testing.T) {
	cam := &fakeCamera{img: gray(64, 48)}
	h := NewServer(cam, Options{
		Photo:    PhotoOptions{Width: 30, Height: 40, Margin: 10},
		Detector: &fakeDetector{},
		Logger:   zerolog.Nop(),
	}).Handler()

	img := decodeBase64JPEG(t, do(t, h, "/takephoto").Body.String())
	assert.Equal(t, image.Rect(0, 0, 30, 40), img.Bounds())
}

func TestTakePhotoDetectorError(t *testing.T) {
	cam := &fakeCamera{img: gray(64, 48)}
	h := NewServer(cam, Options{
		Photo:    PhotoOptions{Width: 30, Height: 40},
		Detector: &fakeDetector{err: errors.New("boom")},
		Logger:   zerolog.Nop(),
	}).Handler()

	rec := do(t, h, "/takephoto")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, decodeBase64JPEG(t, rec.Body.String()).Bounds().Dx())

	empty := NewServer(&fakeCamera{}, Options{Logger: zerolog.Nop()}).Handler()
	assert.Empty(t, do(t, empty, "/takephoto").Body.String())
}

func TestNotFound(t *testing.T) {
	h := NewServer(&fakeCamera{}, Options{Logger: zerolog.Nop()}).Handler()

	for _, p := range []string{"/nope", "/stream", "/api/nope"} {
		rec := do(t, h, p)
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "PAGE-NOT-FOUND: "), p)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestHealthAndInfo(t *testing.T) {
	stream := output.NewMJPEGOutput(output.Config{FPS: 5}, zerolog.Nop())
	h := NewServer(&fakeCamera{active: true}, Options{
		Backend: "gstreamer",
		Stream:  stream,
		Logger:  zerolog.Nop(),
	}).Handler()

	rec := do(t, h, "/api/health")
	assert.JSONEq(t, `{"status":"healthy","version":"`+Version+`"}`, rec.Body.String())

	rec = do(t, h, "/api/info")
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "gstreamer", info["backend"])
	assert.Equal(t, true, info["active"])
	assert.Equal(t, "h264", info["context"].(map[string]interface{})["codec"])
	assert.Equal(t, float64(2), info["identity"].(map[string]interface{})["camera_index"])
	assert.NotNil(t, info["stream"])

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, "/snapshot.jpg").Code)
}

func TestOptionsPreflight(t *testing.T) {
	h := NewServer(&fakeCamera{}, Options{Logger: zerolog.Nop()}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/camera", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusWebSocket(t *testing.T) {
	cam := &fakeCamera{}
	srv := httptest.NewServer(NewServer(cam, Options{
		StatusInterval: 20 * time.Millisecond,
		Logger:         zerolog.Nop(),
	}).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg statusMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.False(t, msg.Status)

	cam.setActive(true)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for !msg.Status {
		require.NoError(t, conn.ReadJSON(&msg))
	}
	assert.True(t, msg.Status)
}
