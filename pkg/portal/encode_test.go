package portal

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCredentials(t *testing.T) {
	encoded := EncodeCredentials("2021001", "secret")

	parts := strings.Split(encoded, "%%%")
	require.Len(t, parts, 2)

	user, err := base64.StdEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Equal(t, "2021001", string(user))

	pass, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Equal(t, "secret", string(pass))
}

func TestEncodeCredentialsEmpty(t *testing.T) {
	assert.Equal(t, "%%%", EncodeCredentials("", ""))
}
