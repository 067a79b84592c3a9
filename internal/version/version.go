// Package version classifies package version strings for index ordering.
// A version is a dotted numeric core with an optional pre-release tag
// (alpha, beta, rc). Stable versions sort above any pre-release of the
// same core; among pre-releases of the same core, rc > beta > alpha.
package version

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Tag identifies the pre-release kind of a version, if any.
type Tag int

// Pre-release tags in ascending precedence. TagNone (stable) sorts
// above every pre-release of the same numeric core.
const (
	TagAlpha Tag = iota
	TagBeta
	TagRC
	TagNone
)

// String returns the canonical lowercase spelling of the tag.
func (t Tag) String() string {
	switch t {
	case TagAlpha:
		return "alpha"
	case TagBeta:
		return "beta"
	case TagRC:
		return "rc"
	default:
		return ""
	}
}

// ErrInvalidVersion indicates a version string with no parsable numeric core.
type ErrInvalidVersion struct {
	Raw   string
	Cause error
}

func (e ErrInvalidVersion) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid version %q: %v", e.Raw, e.Cause)
	}
	return fmt.Sprintf("invalid version %q", e.Raw)
}

func (e ErrInvalidVersion) Unwrap() error {
	return e.Cause
}

func (e ErrInvalidVersion) Is(target error) bool {
	_, ok := target.(ErrInvalidVersion)
	return ok
}

// Record is the classified form of a version string.
type Record struct {
	Input     string          // version exactly as supplied by the caller
	Raw       string          // supplied version with a leading "v" stripped
	Core      *semver.Version // numeric core, missing trailing components zero-padded
	Tag       Tag             // TagNone for stable versions
	TagNumber int             // numeric suffix of the tag ("rc2" -> 2), 0 if absent
}

// prereleasePattern splits a version into its numeric core and an
// optional pre-release marker with numeric suffix.
var prereleasePattern = regexp.MustCompile(`(?i)^(.*?)[-._]?(alpha|beta|rc)[-._]?(\d*)$`)

// Classify parses a raw version string into a Record.
// A leading "v" is stripped before parsing.
func Classify(raw string) (Record, error) {
	trimmed := strings.TrimSpace(raw)
	stripped := strings.TrimPrefix(strings.TrimPrefix(trimmed, "v"), "V")
	if stripped == "" {
		return Record{}, ErrInvalidVersion{Raw: raw}
	}

	core := stripped
	tag := TagNone
	tagNumber := 0

	if m := prereleasePattern.FindStringSubmatch(core); m != nil {
		switch strings.ToLower(m[2]) {
		case "alpha":
			tag = TagAlpha
		case "beta":
			tag = TagBeta
		case "rc":
			tag = TagRC
		}
		if m[3] != "" {
			n, err := strconv.Atoi(m[3])
			if err != nil {
				return Record{}, ErrInvalidVersion{Raw: raw, Cause: err}
			}
			tagNumber = n
		}
		core = m[1]
	}

	parsed, err := semver.NewVersion(core)
	if err != nil {
		return Record{}, ErrInvalidVersion{Raw: raw, Cause: err}
	}

	return Record{
		Input:     trimmed,
		Raw:       stripped,
		Core:      parsed,
		Tag:       tag,
		TagNumber: tagNumber,
	}, nil
}

// IsStable reports whether the record has no pre-release tag.
func (r Record) IsStable() bool {
	return r.Tag == TagNone
}

// Canonical returns the normalized version key used for duplicate
// detection: the zero-padded numeric core plus the pre-release marker.
func (r Record) Canonical() string {
	if r.Tag == TagNone {
		return r.Core.String()
	}
	if r.TagNumber > 0 {
		return fmt.Sprintf("%s-%s%d", r.Core.String(), r.Tag, r.TagNumber)
	}
	return fmt.Sprintf("%s-%s", r.Core.String(), r.Tag)
}

// Compare orders two records. It returns -1 if a < b, 0 if equal, 1 if
// a > b. The numeric core dominates; among equal cores a stable record
// sorts above any pre-release, then rc > beta > alpha, then the tag's
// numeric suffix decides.
func Compare(a, b Record) int {
	if c := a.Core.Compare(b.Core); c != 0 {
		return c
	}
	if a.Tag != b.Tag {
		if a.Tag > b.Tag {
			return 1
		}
		return -1
	}
	if a.TagNumber != b.TagNumber {
		if a.TagNumber > b.TagNumber {
			return 1
		}
		return -1
	}
	return 0
}

// SortDescending sorts records newest-first in place.
func SortDescending(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return Compare(records[i], records[j]) > 0
	})
}

// SelectDefault picks the default version for a package page: the
// highest stable version, or the highest version of any kind when no
// stable version exists. Returns false for an empty set.
func SelectDefault(records []Record) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}

	var best Record
	haveStable := false
	for _, r := range records {
		if !r.IsStable() {
			continue
		}
		if !haveStable || Compare(r, best) > 0 {
			best = r
			haveStable = true
		}
	}
	if haveStable {
		return best, true
	}

	best = records[0]
	for _, r := range records[1:] {
		if Compare(r, best) > 0 {
			best = r
		}
	}
	return best, true
}
