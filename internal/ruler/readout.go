package ruler

import (
	"fmt"

	"github.com/zeusync/ruler/internal/core/spatial"
)

// FormatDistance renders meters as centimeters with one decimal, e.g. "5.0cm".
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.1fcm", meters*100)
}

// Readout is the label text for a relative transform.
func Readout(rel spatial.Pose) string {
	return FormatDistance(rel.Distance())
}
