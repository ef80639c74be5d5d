package generation

import "github.com/lumeo-ai/studio/internal/models"

// Credit costs per request shape. The backend debits the same table; the
// client only uses these to gate submission before dispatch.
const (
	CostImageSingle = 5
	CostImageMulti  = 10
	CostVideo       = 20
)

// Attachment caps per mode.
const (
	MaxImageFiles = 8
	MaxVideoFiles = 1
)

// EditingContext reports whether the next submission should modify the
// currently displayed result instead of creating from scratch: image mode,
// a prior result on screen, and no fresh upload.
func EditingContext(mode models.Mode, hasPriorResult bool, fileCount int) bool {
	return mode == models.ModeImage && hasPriorResult && fileCount == 0
}

// Cost is a pure function of (mode, file count, editing context). It is
// recomputed on every call and never cached.
func Cost(mode models.Mode, fileCount int, editingContext bool) int {
	if mode == models.ModeVideo {
		return CostVideo
	}
	if fileCount > 1 || editingContext {
		return CostImageMulti
	}
	return CostImageSingle
}

// AspectRatios is the selectable output format catalog.
var AspectRatios = []string{"16:9", "9:16", "1:1", "4:3", "3:4", "21:9"}

const DefaultAspectRatio = "16:9"

// NormalizeAspectRatio maps unknown or empty values to the default.
func NormalizeAspectRatio(s string) string {
	for _, r := range AspectRatios {
		if s == r {
			return s
		}
	}
	return DefaultAspectRatio
}
