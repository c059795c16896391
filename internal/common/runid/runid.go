package runid

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxLength caps run ids at the length of a UUID
	MaxLength = 36
	// PrefixLength is the length of the random part added to labelled ids
	PrefixLength = 8
	// MaxLabelLength = 36 - 8 prefix - 1 hyphen
	MaxLabelLength = MaxLength - PrefixLength - 1
)

var (
	invalidChars = regexp.MustCompile(`[^a-z0-9-]+`)
	hyphens      = regexp.MustCompile(`-+`)
)

// New returns an id for one benchmark run.
// Without a usable label it is a random UUID. With one, the label is
// lowercased, reduced to [a-z0-9-] and appended to a random prefix:
// {8-hex-chars}-{label}.
func New(label string) string {
	clean := Sanitize(label)
	if clean == "" {
		return uuid.NewString()
	}

	if len(clean) > MaxLabelLength {
		clean = strings.TrimSuffix(clean[:MaxLabelLength], "-")
	}

	return randomPrefix() + "-" + clean
}

// Sanitize reduces label to the characters allowed in a run id
func Sanitize(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.NewReplacer(" ", "-", "_", "-", ".", "-", ":", "-").Replace(s)
	s = invalidChars.ReplaceAllString(s, "")
	s = hyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func randomPrefix() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:PrefixLength]
}
