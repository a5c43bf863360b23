package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	dirtyMarker  = color.New(color.FgYellow, color.Bold)
	syncedMarker = color.New(color.FgGreen)
)

// SyncMarker renders a colored dirty/synced indicator for list views
func SyncMarker(isDirty bool) string {
	if isDirty {
		return dirtyMarker.Sprint("●")
	}
	return syncedMarker.Sprint("✓")
}

// TruncateString shortens a string to maxLen runes, appending an ellipsis
func TruncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// ParseTags splits a comma-separated tag list, trimming whitespace and
// dropping empties
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, strings.ToLower(t))
		}
	}
	return tags
}

// FormatRelativeTime renders a timestamp as a human-friendly age
func FormatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
