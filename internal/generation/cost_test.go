package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumeo-ai/studio/internal/models"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name    string
		mode    models.Mode
		files   int
		editing bool
		want    int
	}{
		{"image no files", models.ModeImage, 0, false, CostImageSingle},
		{"image one file", models.ModeImage, 1, false, CostImageSingle},
		{"image two files", models.ModeImage, 2, false, CostImageMulti},
		{"image many files", models.ModeImage, 8, false, CostImageMulti},
		{"image editing no files", models.ModeImage, 0, true, CostImageMulti},
		{"video", models.ModeVideo, 0, false, CostVideo},
		{"video with start frame", models.ModeVideo, 1, false, CostVideo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cost(tt.mode, tt.files, tt.editing))
		})
	}
}

func TestEditingContext(t *testing.T) {
	assert.True(t, EditingContext(models.ModeImage, true, 0))

	// Any fresh upload wins over the displayed result.
	assert.False(t, EditingContext(models.ModeImage, true, 1))
	assert.False(t, EditingContext(models.ModeImage, false, 0))
	assert.False(t, EditingContext(models.ModeVideo, true, 0))
	assert.False(t, EditingContext(models.ModeGallery, true, 0))
}

func TestNormalizeAspectRatio(t *testing.T) {
	for _, r := range AspectRatios {
		assert.Equal(t, r, NormalizeAspectRatio(r))
	}
	assert.Equal(t, DefaultAspectRatio, NormalizeAspectRatio(""))
	assert.Equal(t, DefaultAspectRatio, NormalizeAspectRatio("2:1"))
}
