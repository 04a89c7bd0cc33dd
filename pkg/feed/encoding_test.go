package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeTextUTF8BOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("<pdv ville=\"Mâcon\"/>")...)
	got := DecodeText(raw)
	assert.Equal(t, "<pdv ville=\"Mâcon\"/>", got)
}

func TestDecodeTextDeclaredLatin1(t *testing.T) {
	// "Saint-Étienne" with É as the single Latin-1 byte 0xC9.
	raw := []byte(`<?xml version="1.0" encoding="ISO-8859-1"?><ville>Saint-`)
	raw = append(raw, 0xC9)
	raw = append(raw, []byte("tienne</ville>")...)

	got := DecodeText(raw)
	assert.Contains(t, got, "Saint-Étienne")
}

func TestDecodeTextStrictUTF8(t *testing.T) {
	got := DecodeText([]byte("<ville>Orléans</ville>"))
	assert.Equal(t, "<ville>Orléans</ville>", got)
}

func TestDecodeTextLatin1Fallback(t *testing.T) {
	// No BOM, no declaration, invalid UTF-8: 0xE9 is é in ISO-8859-1.
	raw := []byte("<ville>S")
	raw = append(raw, 0xE9)
	raw = append(raw, []byte("te</ville>")...)

	got := DecodeText(raw)
	assert.Equal(t, "<ville>Séte</ville>", got)
}

func TestRepairMojibakeLatin(t *testing.T) {
	got := DecodeText([]byte("<ville>SAINT-DENIS-LÃ¨S-BOURG Ã©tÃ©</ville>"))
	assert.Equal(t, "<ville>SAINT-DENIS-LèS-BOURG été</ville>", got)
}

func TestRepairMojibakeStrayGlyphs(t *testing.T) {
	got := repairMojibake("caf√© √† c√¥t√©")
	assert.Equal(t, "café à côté", got)
}

// The upstream repair list carries two dash rules for the same byte
// sequence; application is ordered, so the en dash always wins and the em
// dash rule never fires. This pins that behavior.
func TestRepairMojibakeDashOrdering(t *testing.T) {
	got := repairMojibake("10h â€“ 19h")
	assert.Equal(t, "10h – 19h", got)
	assert.NotContains(t, got, "—")
}

func TestRepairMojibakeAppliedInTableOrder(t *testing.T) {
	// Each entry is applied once across the whole text.
	got := repairMojibake("Ã©Ã©Ã¨")
	assert.Equal(t, "ééè", got)
}

func TestDeclaredEncoding(t *testing.T) {
	assert.Equal(t, "ISO-8859-1", declaredEncoding([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?>`)))
	assert.Equal(t, "utf-8", declaredEncoding([]byte(`<?xml encoding='utf-8'?>`)))
	assert.Equal(t, "", declaredEncoding([]byte(`<?xml version="1.0"?>`)))
}
