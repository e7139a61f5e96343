package telegram

import (
	"fmt"
	"time"

	"geostory-pipeline/pkg/utils"
)

// FormatDeadLetterMessage formats the alert sent when an enrichment job
// exhausts its retry budget.
func FormatDeadLetterMessage(t time.Time, fingerprint, stage, lastError string, attempts int) string {
	return fmt.Sprintf(`📛 [DEAD LETTER]
%s
📰 Story: %s
🔁 Stage: %s (attempt %d)
⚠️ %s
`, utils.PrettyDate(t), fingerprint, stage, attempts, lastError)
}

// FormatErrorAlertMessage formats a generic operational error alert.
func FormatErrorAlertMessage(t time.Time, errType string, errMsg string) string {
	return fmt.Sprintf(`📛 [ERROR ALERT]
%s
🔧 %s
⚠️ %s
`, utils.PrettyDate(t), errType, errMsg)
}
