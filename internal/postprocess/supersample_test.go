package postprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsampleKeepsSmallImages(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	assert.Same(t, img, Downsample(img, 8, 8))
	assert.Same(t, img, Downsample(img, 16, 16))
}

func TestDownsampleNoDarkHalo(t *testing.T) {
	// a red square on a transparent black background
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 8; y < 24; y++ {
		for x := 8; x < 24; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	out := Downsample(img, 16, 16)
	require.Equal(t, image.Rect(0, 0, 16, 16), out.Bounds())

	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(8, 8))
	assert.Zero(t, out.NRGBAAt(0, 0).A)

	// the edge is partly transparent but keeps its color
	edge := out.NRGBAAt(4, 8)
	assert.Greater(t, edge.A, uint8(0))
	assert.Less(t, edge.A, uint8(255))
	assert.GreaterOrEqual(t, edge.R, uint8(250))
}

func TestDownsampleRect(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	out := Downsample(img, 20, 10)
	assert.Equal(t, image.Rect(0, 0, 20, 10), out.Bounds())
}
