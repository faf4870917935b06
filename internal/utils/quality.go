package utils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/archivarr/archivarr/internal/provider"
)

// qualityFixes compensates for provider quirks where the advertised height
// does not match the conventional quality label.
var qualityFixes = map[int]int{
	352: 360,
	640: 720,
}

var formatNoteHeight = regexp.MustCompile(`(\d{3,4})p`)

// ApplyQualityFix maps a raw height through the provider-quirk table
func ApplyQualityFix(height int) int {
	if fixed, ok := qualityFixes[height]; ok {
		return fixed
	}
	return height
}

// SetQualityFixes replaces the quirk table. Intended for configuration
// overrides at startup.
func SetQualityFixes(fixes map[int]int) {
	qualityFixes = fixes
}

// ParseFormatNote normalises a provider format note ("720p60", "1080p
// Premium", "DASH video") to an integer quality. Returns 0 when the note
// carries no height.
func ParseFormatNote(note string) int {
	if m := formatNoteHeight.FindStringSubmatch(note); m != nil {
		height, _ := strconv.Atoi(m[1])
		return ApplyQualityFix(height)
	}
	// Some notes are a bare number
	if n, err := strconv.Atoi(strings.TrimSpace(note)); err == nil {
		return ApplyQualityFix(n)
	}
	return 0
}

// DownloadedQuality determines the quality of a finished download by
// matching the primary format id against the advertised format list. The
// format id may be a composite "video+audio" pair; the first component is
// the video format.
func DownloadedQuality(formatID string, formats []provider.Format) int {
	primary := formatID
	if idx := strings.IndexByte(primary, '+'); idx >= 0 {
		primary = primary[:idx]
	}

	for _, f := range formats {
		if f.ID != primary {
			continue
		}
		if q := ParseFormatNote(f.Note); q > 0 {
			return q
		}
		if f.Height > 0 {
			return ApplyQualityFix(f.Height)
		}
	}
	return 0
}

// MaxQuality returns the highest quality advertised across the format list
func MaxQuality(formats []provider.Format) int {
	max := 0
	for _, f := range formats {
		q := ParseFormatNote(f.Note)
		if q == 0 && f.VCodec != "none" {
			q = ApplyQualityFix(f.Height)
		}
		if q > max {
			max = q
		}
	}
	return max
}

// PossibleQualities lists the distinct qualities advertised, ascending
func PossibleQualities(formats []provider.Format) []int {
	seen := map[int]bool{}
	var qualities []int
	for _, f := range formats {
		q := ParseFormatNote(f.Note)
		if q == 0 && f.VCodec != "none" {
			q = ApplyQualityFix(f.Height)
		}
		if q > 0 && !seen[q] {
			seen[q] = true
			qualities = append(qualities, q)
		}
	}
	for i := 1; i < len(qualities); i++ {
		for j := i; j > 0 && qualities[j-1] > qualities[j]; j-- {
			qualities[j-1], qualities[j] = qualities[j], qualities[j-1]
		}
	}
	return qualities
}
