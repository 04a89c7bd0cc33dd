package feed

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}

	// Only the first bytes of the document are inspected for a declaration.
	encodingDeclPrefix = 256
	encodingDeclRe     = regexp.MustCompile(`(?i)encoding\s*=\s*["']([A-Za-z0-9._-]+)["']`)
)

// DecodeText decodes the raw markup bytes to a string. Resolution order:
// UTF-8 BOM, declared encoding from the XML prolog, strict UTF-8, and
// finally ISO-8859-1 which cannot fail. Mojibake repair is applied to the
// decoded text in every case.
func DecodeText(raw []byte) string {
	if bytes.HasPrefix(raw, utf8BOM) {
		return repairMojibake(string(raw[len(utf8BOM):]))
	}

	if name := declaredEncoding(raw); name != "" {
		if enc, err := htmlindex.Get(name); err == nil {
			if decoded, err := enc.NewDecoder().Bytes(raw); err == nil {
				return repairMojibake(string(decoded))
			}
		}
	}

	if utf8.Valid(raw) {
		return repairMojibake(string(raw))
	}

	decoded, _ := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	return repairMojibake(string(decoded))
}

func declaredEncoding(raw []byte) string {
	prefix := raw
	if len(prefix) > encodingDeclPrefix {
		prefix = prefix[:encodingDeclPrefix]
	}
	m := encodingDeclRe.FindSubmatch(prefix)
	if m == nil {
		return ""
	}
	return string(m[1])
}

type mojibakeRule struct {
	broken string
	fixed  string
}

// latinRepairs fixes UTF-8 sequences that were decoded as Latin-1 somewhere
// upstream and re-published as-is. Application order matters: each rule is
// applied once, top to bottom, across the whole text.
var latinRepairs = []mojibakeRule{
	{"Ã©", "é"},
	{"Ã¨", "è"},
	{"Ãª", "ê"},
	{"Ã«", "ë"},
	{"Ã¢", "â"},
	{"Ã´", "ô"},
	{"Ã®", "î"},
	{"Ã¯", "ï"},
	{"Ã»", "û"},
	{"Ã¹", "ù"},
	{"Ã§", "ç"},
	{"Ã ", "à"},
	{"Ã‰", "É"},
	{"Ã€", "À"},
	{"Ã‡", "Ç"},
	{"Å“", "œ"},
	{"â‚¬", "€"},
	{"â€™", "’"},
	{"â€“", "–"},
	// Unreachable: the en dash rule above consumes the same byte sequence
	// first. Kept for parity with the upstream repair list rather than
	// guessing which dash was intended.
	{"â€“", "—"},
}

// strayGlyphRepairs fixes a second corruption family where accented Latin
// characters surface as unrelated non-Latin glyphs (Mac-Roman style
// mis-decoding seen in some mirror copies).
var strayGlyphRepairs = []mojibakeRule{
	{"√©", "é"},
	{"√®", "è"},
	{"√™", "ê"},
	{"√†", "à"},
	{"√¥", "ô"},
	{"√Æ", "î"},
	{"√ß", "ç"},
	{"√π", "ù"},
}

func repairMojibake(text string) string {
	for _, rule := range latinRepairs {
		text = strings.ReplaceAll(text, rule.broken, rule.fixed)
	}
	for _, rule := range strayGlyphRepairs {
		text = strings.ReplaceAll(text, rule.broken, rule.fixed)
	}
	return text
}
