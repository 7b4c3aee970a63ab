package cloak_test

import (
	"context"
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/container"
	"github.com/jmallory/cloak/internal/credential"
	"github.com/jmallory/cloak/internal/framedir"
	"github.com/jmallory/cloak/internal/videostego"
	"github.com/jmallory/cloak/pkg/cloak"
)

// stageFrameDirectory commits a stego frame directory under key, the
// state an earlier lossy-video embed leaves behind.
func stageFrameDirectory(t *testing.T, storeRoot, key string, w, h, n int, raw []byte) {
	t.Helper()
	store, err := framedir.Open(storeRoot)
	require.NoError(t, err)
	defer store.Close()

	frames := make([]*image.NRGBA, n)
	for i := range frames {
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for j := range img.Pix {
			img.Pix[j] = uint8((i*5 + j) % 249)
		}
		frames[i] = img
	}
	require.NoError(t, videostego.EmbedFrames(context.Background(), store, key, frames, raw, 2))
}

// The carrier is a lossless stream renamed to a lossy extension: the
// denylist must skip direct extraction and the content-based probe
// must still resolve the directory key.
func TestLossyVideoFallsBackToFrameDirectory(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	writeY4M(t, clip, 32, 24, 6)

	secret := credential.Normalize("pw")
	props := credential.DirectoryProps{Width: 32, Height: 24, FrameCount: 6}
	raw, err := container.Encode(carrier.FamilyVideo,
		container.Payload{Type: container.TypeText, Data: []byte("recovered from the side store")},
		secret, false)
	require.NoError(t, err)

	storeRoot := filepath.Join(dir, "frames")
	stageFrameDirectory(t, storeRoot, secret.DirectoryKey(props), 32, 24, 6, raw)

	got, err := cloak.Extract(context.Background(), clip, cloak.Options{
		Password:   "pw",
		FrameStore: storeRoot,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered from the side store"), got.Data)
}

func TestLossyVideoPropertyKeyFallback(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	writeY4M(t, clip, 32, 24, 6)

	secret := credential.Normalize("pw")
	props := credential.DirectoryProps{Width: 32, Height: 24, FrameCount: 6}
	raw, err := container.Encode(carrier.FamilyVideo,
		container.Payload{Type: container.TypeText, Data: []byte("found under the property key")},
		secret, false)
	require.NoError(t, err)

	// Stored under the props-only key, as an older layout would have.
	storeRoot := filepath.Join(dir, "frames")
	stageFrameDirectory(t, storeRoot, credential.PropertyKey(props), 32, 24, 6, raw)

	got, err := cloak.Extract(context.Background(), clip, cloak.Options{
		Password:   "pw",
		FrameStore: storeRoot,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("found under the property key"), got.Data)
}

func TestLossyVideoNoDirectory(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	writeY4M(t, clip, 32, 24, 6)

	// An empty store: every strategy exhausts cleanly.
	storeRoot := filepath.Join(dir, "frames")
	store, err := framedir.Open(storeRoot)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = cloak.Extract(context.Background(), clip, cloak.Options{
		Password:   "pw",
		FrameStore: storeRoot,
	})
	assert.ErrorIs(t, err, cloak.ErrNoHiddenData)
}

func TestLossyVideoNoStoreConfigured(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	writeY4M(t, clip, 32, 24, 6)

	_, err := cloak.Extract(context.Background(), clip, cloak.Options{Password: "pw"})
	assert.ErrorIs(t, err, cloak.ErrNoHiddenData)
}

func TestLossyVideoWrongPasswordMissesDirectory(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	writeY4M(t, clip, 32, 24, 6)

	secret := credential.Normalize("right")
	props := credential.DirectoryProps{Width: 32, Height: 24, FrameCount: 6}
	raw, err := container.Encode(carrier.FamilyVideo,
		container.Payload{Type: container.TypeText, Data: []byte("keyed to the right password")},
		secret, false)
	require.NoError(t, err)

	storeRoot := filepath.Join(dir, "frames")
	stageFrameDirectory(t, storeRoot, secret.DirectoryKey(props), 32, 24, 6, raw)

	// A different password derives a different directory key; with no
	// property-key entry either, the search exhausts.
	_, err = cloak.Extract(context.Background(), clip, cloak.Options{
		Password:   "wrong",
		FrameStore: storeRoot,
	})
	assert.ErrorIs(t, err, cloak.ErrNoHiddenData)
}
