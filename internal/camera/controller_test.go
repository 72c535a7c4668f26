package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/camserver/internal/capture"
	"github.com/bryanchriswhite/camserver/internal/capture/capturetest"
	"github.com/bryanchriswhite/camserver/internal/config"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

func newController(identity config.CameraIdentity, fake *capturetest.Backend) *Controller {
	return NewController(identity, Options{
		Platform:       platform.Linux(),
		Backend:        func() capture.Backend { return fake },
		Sentinels:      capture.DefaultSentinels(),
		OpenRetry:      5 * time.Millisecond,
		RecoveryRetry:  5 * time.Millisecond,
		FirstFramePoll: time.Millisecond,
		Logger:         zerolog.Nop(),
	})
}

func TestStartConfigMissing(t *testing.T) {
	fake := capturetest.NewBackend(4, 2)
	c := newController(config.CameraIdentity{Index: 3}, fake)

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrConfigMissing)
	assert.False(t, c.IsActive())
	assert.Zero(t, fake.Opens())
	assert.Nil(t, c.Info().Session)
}

func TestGetImageBeforePublish(t *testing.T) {
	c := newController(config.CameraIdentity{Name: "/dev/video0"}, capturetest.NewBackend(4, 2))

	img, ok := c.GetImage(0)
	assert.False(t, ok)
	assert.Nil(t, img)
}

func TestStartRetriesWithoutSession(t *testing.T) {
	fake := capturetest.NewBackend(4, 2)
	fake.OpenErr = errors.New("device busy")
	c := newController(config.CameraIdentity{Name: "/dev/video0"}, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := c.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, fake.Opens(), 2)
	assert.False(t, c.IsActive())
	assert.Nil(t, c.Info().Session)
	assert.False(t, c.Buffer().HasFrame())
}

func TestStartOpensAfterFailures(t *testing.T) {
	fake := capturetest.NewBackend(4, 2)
	fake.SetOpenErr(errors.New("not yet"))
	fake.Script(capturetest.Step{Frame: capturetest.KeyFrame(4, 2, 90)})
	fake.Hold()
	c := newController(config.CameraIdentity{Name: "/dev/video0", Width: 4, Height: 2}, fake)

	go func() {
		time.Sleep(20 * time.Millisecond)
		fake.SetOpenErr(nil)
	}()

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.True(t, c.IsActive())
	assert.GreaterOrEqual(t, fake.Opens(), 2)
	assert.Equal(t, "/dev/video0", fake.LastOpen().Name)
}

func TestGetImageAppliesTransforms(t *testing.T) {
	fake := capturetest.NewBackend(4, 2)
	fake.Script(capturetest.Step{Frame: capturetest.KeyFrame(4, 2, 200)})
	fake.Hold()
	c := newController(config.CameraIdentity{Name: "/dev/video0", Width: 4, Height: 2, Rotate: 90, Flip: true}, fake)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	img, ok := c.GetImage(0)
	require.True(t, ok)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())

	img, ok = c.GetImage(90)
	require.True(t, ok)
	assert.Equal(t, 4, img.Bounds().Dx())

	img, ok = c.GetImage(45)
	require.True(t, ok)
	assert.Equal(t, 2, img.Bounds().Dx())

	// each call returns an independent copy
	img.Pix[0] = 1
	again, _ := c.GetImage(45)
	assert.NotEqual(t, byte(1), again.Pix[0])
}

func TestRecoveryReconnects(t *testing.T) {
	fake := capturetest.NewBackend(4, 2)
	fake.Script(capturetest.Step{Frame: capturetest.KeyFrame(4, 2, 10)})
	fake.Hold()
	c := newController(config.CameraIdentity{Name: "rtsp://cam/stream", Width: 4, Height: 2}, fake)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.True(t, c.IsActive())

	fake.Script(capturetest.Step{Err: capturetest.ErrBroken})
	require.Eventually(t, func() bool { return !c.IsActive() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return fake.Opens() >= 3 }, time.Second, time.Millisecond)

	fake.Script(capturetest.Step{Frame: capturetest.KeyFrame(4, 2, 220)})
	fake.Hold()

	require.Eventually(t, c.IsActive, time.Second, time.Millisecond)
	img, ok := c.GetImage(0)
	require.True(t, ok)
	assert.InDelta(t, 220, int(img.RGBAAt(0, 0).R), 3)

	info := c.Info()
	assert.Equal(t, uint64(1), info.Recoveries)
	require.NotNil(t, info.Session)
	assert.Equal(t, "streaming", info.Session.State)
	assert.Equal(t, "rtsp://cam/stream", info.ContextInfo["source"])
	assert.Equal(t, "false", info.ContextInfo["local"])
}

func TestStopIsIdempotent(t *testing.T) {
	fake := capturetest.NewBackend(4, 2)
	fake.Script(capturetest.Step{Frame: capturetest.KeyFrame(4, 2, 10)})
	fake.Hold()
	c := newController(config.CameraIdentity{Name: "/dev/video0"}, fake)

	c.Stop()
	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()))

	c.Stop()
	c.Stop()
	assert.False(t, c.IsActive())
	_, ok := c.GetImage(0)
	assert.False(t, ok)
	assert.Equal(t, fake.Opens(), fake.Closes())
}

func TestContextCancelStopsRecovery(t *testing.T) {
	fake := capturetest.NewBackend(4, 2)
	fake.Script(capturetest.Step{Frame: capturetest.KeyFrame(4, 2, 10)})
	fake.Hold()
	c := newController(config.CameraIdentity{Name: "/dev/video0"}, fake)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))

	fake.SetOpenErr(errors.New("unplugged"))
	fake.Script(capturetest.Step{Err: capturetest.ErrBroken})
	require.Eventually(t, func() bool { return !c.IsActive() }, time.Second, time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after context cancellation")
	}
}
