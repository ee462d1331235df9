package i18n

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/bookshelf/internal/apperr"
)

func TestEveryLocaleDefinesEveryKey(t *testing.T) {
	for loc, res := range resources {
		require.Equal(t, loc, res.Locale())
		for key := Key(0); key < keyCount; key++ {
			require.NotEmptyf(t, res.Lookup(key), "locale %s missing key %d", loc, key)
		}
	}
}

func TestNegotiate(t *testing.T) {
	tr, err := NewTranslator(Arabic)
	require.NoError(t, err)
	require.Equal(t, Arabic, tr.Default())

	tests := []struct {
		name     string
		header   string
		override string
		want     Locale
	}{
		{"empty header uses default", "", "", Arabic},
		{"english preferred", "en-US,en;q=0.9,ar;q=0.5", "", English},
		{"arabic region", "ar-EG", "", Arabic},
		{"unsupported falls back", "fr-FR", "", Arabic},
		{"garbage falls back", ";;;q=abc", "", Arabic},
		{"override wins", "ar", "en", English},
		{"invalid override ignored", "en", "de", English},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tr.Negotiate(tt.header, tt.override))
		})
	}
}

func TestNegotiateEnglishDefault(t *testing.T) {
	tr, err := NewTranslator(English)
	require.NoError(t, err)
	require.Equal(t, English, tr.Default())
	require.Equal(t, English, tr.Negotiate("fr-FR", ""))
	require.Equal(t, Arabic, tr.Negotiate("", "ar"))
}

func TestMessageTemplates(t *testing.T) {
	tr, err := NewTranslator(English)
	require.NoError(t, err)

	msg := tr.Message(English, KeyInvalidRating, map[string]string{"Min": "1", "Max": "5"})
	require.Equal(t, "Rating must be between 1 and 5", msg)

	require.Equal(t, "The request is invalid", tr.Message(English, KeyInvalidArgument, nil))
	require.Equal(t, "The request is invalid: title is required",
		tr.Message(English, KeyInvalidArgument, map[string]string{"Reason": "title is required"}))

	require.Equal(t, "العنصر غير موجود", tr.Message(Arabic, KeyNotFound, nil))
	require.Equal(t, "Resource not found", tr.Message(Locale("xx"), KeyNotFound, nil))
}

func TestKeyForCode(t *testing.T) {
	require.Equal(t, KeyDuplicateRating, KeyFor(apperr.CodeDuplicateRating))
	require.Equal(t, KeyConcurrencyConflict, KeyFor(apperr.CodeConcurrencyConflict))
	require.Equal(t, KeyUnknownError, KeyFor(apperr.Code("SOMETHING_ELSE")))
}

func TestParseLocale(t *testing.T) {
	loc, err := ParseLocale(" EN ")
	require.NoError(t, err)
	require.Equal(t, English, loc)

	_, err = ParseLocale("fr")
	require.Error(t, err)

	_, err = NewTranslator(Locale("fr"))
	require.Error(t, err)
}
