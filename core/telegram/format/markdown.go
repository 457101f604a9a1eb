// Package format escapes user-supplied text for Telegram parse modes.
package format

import "strings"

const mdV2Specials = `_*[]()~` + "`" + `>#+-=|{}.!`

// EscapeMarkdownV2 escapes every MarkdownV2 special character so arbitrary
// user input can be interpolated into a formatted message.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(mdV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
