// ABOUTME: Keyword-based alert detection for inbound patient messages
// ABOUTME: Pure substring matching against a configured concern keyword set

package alert

import "strings"

// Detector classifies whether a patient message needs human attention.
// Matching is case-insensitive substring search over a fixed keyword set;
// there is no fuzzy matching or language normalization beyond lower-casing.
// Detect has no side effects and is deterministic for a given keyword set.
type Detector struct {
	keywords []string
}

// DefaultKeywords is the concern vocabulary used when none is configured.
var DefaultKeywords = []string{
	"dor",
	"febre",
	"difícil",
	"não tomei",
	"sem dormir",
	"ansioso",
	"triste",
}

// NewDetector creates a detector for the given keyword set. Keywords are
// lower-cased once at construction. An empty set falls back to
// DefaultKeywords.
func NewDetector(keywords []string) *Detector {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &Detector{keywords: lowered}
}

// Detect reports whether text contains any configured keyword, along with
// the keywords that matched.
func (d *Detector) Detect(text string) (bool, []string) {
	lowered := strings.ToLower(text)

	var matched []string
	for _, kw := range d.keywords {
		if strings.Contains(lowered, kw) {
			matched = append(matched, kw)
		}
	}
	return len(matched) > 0, matched
}
