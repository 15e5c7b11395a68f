package predictions

import "strings"

const chatBaseURL = "https://wa.me/"

// UnlockLink builds the chat deep link used to ask for premium picks.
func UnlockLink(number, message string) string {
	return chatBaseURL + number + "?text=" + encodeURIComponent(message)
}

// encodeURIComponent escapes everything except the RFC 3986 unreserved set
// plus !*'(), matching what browsers put in prefilled chat links.
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
