// Package messaging holds the rendering rules of the group-messaging model:
// body previews and the combined member names shown in conversation lists.
package messaging

// DefaultPreviewLength is the preview size used by conversation lists.
const DefaultPreviewLength = 100

// Ellipsis marks a truncated preview.
const Ellipsis = "..."

// Preview returns body cut to maxLen characters followed by Ellipsis when the
// body is longer than maxLen. A body of exactly maxLen characters is returned
// unchanged. Length is counted in runes, so multi-byte text is never split.
func Preview(body string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	runes := []rune(body)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + Ellipsis
	}
	return body
}
