package episode

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region helpers
func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// writeDataset lays out a dataset with the given episode lengths in split "train".
func writeDataset(t *testing.T, lengths ...int) string {
	t.Helper()
	dir := t.TempDir()
	splitDir := filepath.Join(dir, "train")
	require.NoError(t, os.MkdirAll(splitDir, 0o755))

	info := DatasetInfo{Name: "example_dataset", Version: "1.0.0", ActionDim: 3, Splits: map[string]int{"train": len(lengths)}}
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset_info.json"), data, 0o644))

	for e, n := range lengths {
		var ef episodeFile
		for s := 0; s < n; s++ {
			img := fmt.Sprintf("e%d_s%d.png", e, s)
			wrist := fmt.Sprintf("e%d_s%d_wrist.png", e, s)
			writePNG(t, filepath.Join(splitDir, img), 32, 24, color.RGBA{R: uint8(s * 10), A: 255})
			writePNG(t, filepath.Join(splitDir, wrist), 16, 16, color.RGBA{G: uint8(s * 10), A: 255})

			var sf stepFile
			sf.Observation.Image = img
			sf.Observation.WristImage = wrist
			sf.Action = []float32{float32(s), float32(e), 1}
			sf.IsFirst = s == 0
			sf.IsLast = s == n-1
			if s == 0 {
				sf.LanguageInstruction = "pick up the red block"
			}
			ef.Steps = append(ef.Steps, sf)
		}
		data, err := json.Marshal(ef)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(splitDir, fmt.Sprintf("episode_%05d.json", e)), data, 0o644))
	}
	return dir
}

// #endregion helpers

func TestFromDirectory_ReadsInfo(t *testing.T) {
	dir := writeDataset(t, 3)

	b, err := FromDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, "example_dataset", b.Info().Name)
	assert.Equal(t, 3, b.Info().ActionDim)
	assert.Equal(t, dir, b.Dir())
	assert.Equal(t, DefaultPrimarySize, b.PrimarySize)
}

func TestFromDirectory_Missing(t *testing.T) {
	_, err := FromDirectory(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestAsDataset_FirstEpisode(t *testing.T) {
	dir := writeDataset(t, 4, 5, 6)
	b, err := FromDirectory(dir)
	require.NoError(t, err)

	ds, err := b.AsDataset("train[:1]")
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())

	ep, err := ds.Next()
	require.NoError(t, err)
	assert.Equal(t, "episode_00000", ep.ID)
	assert.Equal(t, 4, ep.Len())
	assert.Equal(t, "pick up the red block", ep.Instruction())

	// primary frames are resized, wrist frames are not
	assert.Equal(t, image.Rect(0, 0, 256, 256), ep.Steps[0].Observation.Image.Bounds())
	assert.Equal(t, image.Rect(0, 0, 16, 16), ep.Steps[0].Observation.WristImage.Bounds())
	assert.Equal(t, ep.Steps[3].Observation.Image, ep.GoalImage())
	assert.Equal(t, []float32{2, 0, 1}, ep.Actions()[2])

	_, err = ds.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestAsDataset_SliceAndNative(t *testing.T) {
	dir := writeDataset(t, 2, 3, 4)
	b, err := FromDirectory(dir)
	require.NoError(t, err)
	b.PrimarySize = 0

	ds, err := b.AsDataset("train[1:]")
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	ep, err := ds.Episode(1)
	require.NoError(t, err)
	assert.Equal(t, "episode_00002", ep.ID)
	assert.Equal(t, image.Rect(0, 0, 32, 24), ep.Steps[0].Observation.Image.Bounds())

	_, err = ds.Episode(2)
	assert.Error(t, err)
}

func TestAsDataset_Errors(t *testing.T) {
	dir := writeDataset(t, 2)
	b, err := FromDirectory(dir)
	require.NoError(t, err)

	_, err = b.AsDataset("test")
	assert.True(t, errors.Is(err, ErrBadSplit))

	_, err = b.AsDataset("train[5:]")
	assert.True(t, errors.Is(err, ErrNoEpisodes))

	_, err = b.AsDataset("train[:x]")
	assert.True(t, errors.Is(err, ErrBadSplit))
}

func TestAsDataset_ActionDimMismatch(t *testing.T) {
	dir := writeDataset(t, 2)
	info := DatasetInfo{Name: "example_dataset", ActionDim: 7, Splits: map[string]int{"train": 1}}
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset_info.json"), data, 0o644))

	b, err := FromDirectory(dir)
	require.NoError(t, err)
	ds, err := b.AsDataset("train")
	require.NoError(t, err)

	_, err = ds.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action dim 3, want 7")
}

func TestResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 20))
	dst := Resize(src, 4, 4)
	assert.Equal(t, image.Rect(0, 0, 4, 4), dst.Bounds())
}
