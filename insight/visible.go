package insight

import (
	"strings"

	"github.com/c360studio/launchmate/project"
)

// FailureSentinel is stored in place of content when generation fails. It
// counts toward the minimum but is hidden from readers.
const FailureSentinel = "Failed to fetch updates."

var hiddenMarkers = []string{strings.TrimSuffix(FailureSentinel, ".")}

// IsFailure reports whether content is a stored generation failure.
func IsFailure(content string) bool {
	for _, m := range hiddenMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// Visible returns the records a reader should see, in feed order.
func Visible(feed []project.Insight) []project.Insight {
	out := make([]project.Insight, 0, len(feed))
	for _, in := range feed {
		if !IsFailure(in.Content) {
			out = append(out, in)
		}
	}
	return out
}
