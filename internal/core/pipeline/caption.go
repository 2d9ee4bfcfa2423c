package pipeline

import (
	"fmt"
	"strings"
)

// predictCaption renders the per-face caption text sent back with a
// prediction, one "label: 93.25%" line per face.
func predictCaption(faces []FacePrediction) string {
	var b strings.Builder
	for _, face := range faces {
		fmt.Fprintf(&b, "%s: %.2f%%\n", face.Label, face.Probability*100)
	}
	return b.String()
}
