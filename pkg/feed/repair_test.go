package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairPluralCloseTag(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"service closed as services",
			`<service>Boutique</services>`,
			`<service>Boutique</service>`,
		},
		{
			"attributes survive",
			`<horaire ouverture="08.00">x</horaires>`,
			`<horaire ouverture="08.00">x</horaire>`,
		},
		{
			"matching pair untouched",
			`<service>Boutique</service>`,
			`<service>Boutique</service>`,
		},
		{
			"unrelated close tag untouched",
			`<service>Boutique</prestations>`,
			`<service>Boutique</prestations>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairPluralClose(tt.in))
		})
	}
}

func TestEscapeBareAmpersands(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`<ville>Aix & Cie</ville>`, `<ville>Aix &amp; Cie</ville>`},
		{`a &amp; b`, `a &amp; b`},
		{`a &lt; b &#233; &#x2019;`, `a &lt; b &#233; &#x2019;`},
		{`&&`, `&amp;&amp;`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeBareAmpersands(tt.in), "input %q", tt.in)
	}
}

func TestStripControlChars(t *testing.T) {
	in := "a\x00b\x01c\td\ne\rf\x7fg"
	assert.Equal(t, "abc\td\ne\rfg", stripControlChars(in))
}

func TestRepairNeverDropsFieldContent(t *testing.T) {
	in := `<pdv id="1"><service>Lavage & gonflage</services></pdv>`
	out := Repair(in)
	assert.Contains(t, out, "Lavage &amp; gonflage")
	assert.Contains(t, out, "</service>")
}
