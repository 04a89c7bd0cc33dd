package feed

import (
	"regexp"
	"strings"
)

var (
	// <service ...>text</services> and friends: close tag is the open tag
	// name plus a trailing "s". RE2 has no backreferences, so the name match
	// is verified in the replacement callback.
	pluralCloseRe = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_.-]*)((?:\s[^<>]*)?)>([^<]*)</([A-Za-z_][A-Za-z0-9_.-]*)s>`)

	// Ampersands followed by a recognized entity are kept; everything else
	// gets escaped. The optional group stands in for a negative lookahead.
	bareAmpRe = regexp.MustCompile(`&(amp;|lt;|gt;|quot;|apos;|#[0-9]+;|#x[0-9a-fA-F]+;)?`)
)

// Repair rewrites the known malformed-markup patterns in the feed so the
// text becomes parseable: mismatched pluralized close tags, bare ampersands,
// and control characters outside the XML-allowed range. Field content is
// never removed, only tag and entity syntax is touched.
func Repair(text string) string {
	text = repairPluralClose(text)
	text = escapeBareAmpersands(text)
	return stripControlChars(text)
}

func repairPluralClose(text string) string {
	return pluralCloseRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := pluralCloseRe.FindStringSubmatch(match)
		if sub == nil || sub[4] != sub[1] {
			return match
		}
		return "<" + sub[1] + sub[2] + ">" + sub[3] + "</" + sub[1] + ">"
	})
}

func escapeBareAmpersands(text string) string {
	return bareAmpRe.ReplaceAllStringFunc(text, func(match string) string {
		if match == "&" {
			return "&amp;"
		}
		return match
	})
}

func stripControlChars(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20 || r == 0x7F:
			return -1
		}
		return r
	}, text)
}
