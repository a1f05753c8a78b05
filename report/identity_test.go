package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePersonKey_CaseAndWhitespaceInsensitive(t *testing.T) {
	tests := []struct {
		name  string
		first string
		last  string
		want  string
	}{
		{"plain", "Jane", "Doe", "jane doe"},
		{"upper", "JANE", "DOE", "jane doe"},
		{"padded", "  jane  ", "  doe  ", "jane doe"},
		{"internal whitespace", "Jane\tMarie", "Doe", "jane marie doe"},
		{"mononym duplicated", "Madonna", "Madonna", "madonna madonna"},
		{"empty last", "Jane", "", "jane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePersonKey(tt.first, tt.last))
		})
	}
}

func TestNormalizePersonKey_StableAcrossSources(t *testing.T) {
	// GIVEN: the same person spelled differently in two files
	// THEN: both spellings produce the same key
	fromMain := NormalizePersonKey(SplitName("  Jane   Doe "))
	fromTraining := NormalizePersonKey("JANE", "doe")
	assert.Equal(t, fromMain, fromTraining)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in        string
		wantFirst string
		wantLast  string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane Marie Doe", "Jane", "Doe"},
		{"Madonna", "Madonna", "Madonna"},
		{"  Jane   Doe  ", "Jane", "Doe"},
		{"", "", ""},
	}

	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.wantFirst, first, "first of %q", tt.in)
		assert.Equal(t, tt.wantLast, last, "last of %q", tt.in)
	}
}

func TestNormalizeDisplayName(t *testing.T) {
	assert.Equal(t, "total", NormalizeDisplayName("  ToTaL "))
	assert.Equal(t, "jane doe", NormalizeDisplayName("Jane  Doe"))
}
