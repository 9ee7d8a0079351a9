package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/raindrop/internal/api"
	"github.com/victornm/raindrop/internal/domain"
)

func TestTokenCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  secret: s3cret\n"), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "alice", "--config", path})
	require.NoError(t, cmd.Execute())

	var claims api.Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), &claims, func(*jwt.Token) (any, error) {
		return []byte("s3cret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, domain.RoleStudent, claims.Role)
}

func TestLoadConfig(t *testing.T) {
	_, err := loadConfig("")
	assert.EqualError(t, err, "CONFIG_PATH not set")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("battle:\n  allowedseconds: 45\n"), 0o600))

	c, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 45, c.Battle.AllowedSeconds)
	assert.Equal(t, 5, c.Battle.QuestionCount)
	assert.Equal(t, int32(8080), c.HTTP.Port)
}
