package utils

import (
	"time"
)

// PrettyDate formats a timestamp for human-facing alert messages.
func PrettyDate(t time.Time) string {
	return t.Format("Mon, 02 Jan 2006 15:04:05 MST")
}
