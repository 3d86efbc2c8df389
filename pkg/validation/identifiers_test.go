package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUUID(t *testing.T) {
	assert.NoError(t, ValidateUUID("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Error(t, ValidateUUID(""))
	assert.Error(t, ValidateUUID("agency-1"))
}

func TestValidateAndNormalizeHandle(t *testing.T) {
	h, err := ValidateAndNormalizeHandle(" @Ava.Rose ")
	require.NoError(t, err)
	assert.Equal(t, "ava.rose", h)

	for _, bad := range []string{"", "@", "has space", "emoji😀"} {
		_, err := ValidateAndNormalizeHandle(bad)
		assert.Error(t, err, bad)
	}
}
