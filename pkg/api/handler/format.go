package handler

import (
	"fmt"
	"time"
)

// formatDuration 格式化持续时间
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

func elapsed(start time.Time, end *time.Time) string {
	if end == nil || start.IsZero() {
		return ""
	}
	return formatDuration(end.Sub(start))
}
