package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/auth"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := auth.Issue("inst-1", auth.RoleInstructor, "qrattend", "secret", time.Minute)
	require.NoError(t, err)

	claims, err := auth.Parse(tok.AccessToken, "secret", "qrattend")
	require.NoError(t, err)
	assert.Equal(t, "inst-1", claims.Subject)
	assert.Equal(t, auth.RoleInstructor, claims.Role)
}

func TestParseRejects(t *testing.T) {
	tok, err := auth.Issue("inst-1", auth.RoleInstructor, "qrattend", "secret", time.Minute)
	require.NoError(t, err)

	_, err = auth.Parse(tok.AccessToken, "other", "qrattend")
	assert.Error(t, err)
	_, err = auth.Parse(tok.AccessToken, "secret", "someone-else")
	assert.Error(t, err)

	expired, err := auth.Issue("inst-1", auth.RoleInstructor, "qrattend", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = auth.Parse(expired.AccessToken, "secret", "qrattend")
	assert.Error(t, err)
}
