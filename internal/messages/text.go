package messages

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxLength caps outgoing message text, counted in runes.
const MaxLength = 5000

var (
	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.+?)\*`)
	linkRe   = regexp.MustCompile(`https?://[^\s<>"]+`)

	// only what Format itself produces survives
	markupPolicy = bluemonday.NewPolicy().
			AllowElements("b", "i").
			AllowAttrs("href").OnElements("a").
			AllowURLSchemes("http", "https").
			RequireParseableURLs(true).
			RequireNoFollowOnLinks(true).
			AddTargetBlankToFullyQualifiedLinks(true)
)

// Sanitize strips control characters (except tab and newline), trims
// whitespace and caps the text at MaxLength runes.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			continue
		}
		if r == unicode.ReplacementChar {
			continue
		}
		if n == MaxLength {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

// Format renders **bold**, *italic* and bare http(s) links as HTML. The
// input is escaped first and the result passes through a policy that only
// knows b, i and a.
func Format(text string) string {
	out := html.EscapeString(text)
	out = boldRe.ReplaceAllString(out, "<b>$1</b>")
	out = italicRe.ReplaceAllString(out, "<i>$1</i>")
	out = linkRe.ReplaceAllString(out, `<a href="$0">$0</a>`)
	return markupPolicy.Sanitize(out)
}
