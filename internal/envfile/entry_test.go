package envfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
)

func TestNormalizeEntry(t *testing.T) {
	got, err := NormalizeEntry(KeyAPIKey, "  abc123 \t")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)

	got, err = NormalizeEntry(KeyDisplayID, " 12 ")
	require.NoError(t, err)
	assert.Equal(t, " 12 ", got, "only the API key is trimmed")

	for _, tc := range []struct{ key, value string }{
		{"", "x"},
		{"9LIVES", "x"},
		{"HAS-DASH", "x"},
		{"KEY", "a\nb"},
		{"KEY", "a\rb"},
		{KeyAPIKey, "   "},
	} {
		_, err := NormalizeEntry(tc.key, tc.value)
		require.Error(t, err, "%q=%q", tc.key, tc.value)
		assert.Equal(t, derrors.CategoryValidation, derrors.GetCategory(err))
	}
}
