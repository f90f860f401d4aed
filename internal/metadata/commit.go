package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// commitRe matches the commitment annotation at the start of a comment:
// [COMMIT] <YES|NO> <0-100>%. Anything after the first line is freeform
// reasoning and is not parsed.
var commitRe = regexp.MustCompile(`(?i)^\s*\[COMMIT\]\s+(YES|NO)\s+(\d{1,3})%`)

// Commit is a parsed commitment annotation.
type Commit struct {
	Position   domain.Position
	Confidence int
}

// ParseCommit extracts a commitment annotation from comment text. ok is
// false when the text carries no well-formed annotation.
func ParseCommit(text string) (Commit, bool) {
	firstLine, _, _ := strings.Cut(text, "\n")
	m := commitRe.FindStringSubmatch(firstLine)
	if m == nil {
		return Commit{}, false
	}
	conf, err := strconv.Atoi(m[2])
	if err != nil || conf < 0 || conf > 100 {
		return Commit{}, false
	}
	return Commit{
		Position:   domain.Position(strings.ToUpper(m[1])),
		Confidence: conf,
	}, true
}
