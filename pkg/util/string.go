package util

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var unsafeNameChars = regexp.MustCompile(`[\x00-\x1f\x7f/\\]+`)

// SanitizeFileName makes a name safe to use as a remote file name.
func SanitizeFileName(name string) string {
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)

	// Limit length
	if len(name) > 200 {
		ext := path.Ext(name)
		if len(ext) > 20 {
			ext = ""
		}
		name = strings.TrimSpace(name[:200-len(ext)]) + ext
	}
	return name
}

// UploadFileName picks the remote name for an asset: its recorded file name,
// else the last element of its storage reference, else asset-<id>.
func UploadFileName(fileName, reference string, assetID uint) string {
	if name := SanitizeFileName(fileName); name != "" {
		return name
	}

	ref := strings.TrimSpace(reference)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if base := path.Base(strings.TrimRight(ref, "/")); base != "." && base != "/" && !strings.HasSuffix(base, ":") {
		if name := SanitizeFileName(base); name != "" {
			return name
		}
	}
	return fmt.Sprintf("asset-%d", assetID)
}

// ParseClock parses an HH:MM time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextDailyOccurrence returns the first instant strictly after now whose
// wall clock in now's location is HH:MM.
func NextDailyOccurrence(hhmm string, now time.Time) (time.Time, error) {
	hour, minute, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
