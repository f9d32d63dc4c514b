package rtc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalink/telecare/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestMintStaticTokenTakesPriority(t *testing.T) {
	m := NewTokenMinter(42, testSecret, "dev-token", 0)
	tok, err := m.Mint("consult_room_1", "patient1", models.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, "dev-token", tok)
}

func TestMintWithoutSecretJoinsTokenless(t *testing.T) {
	m := NewTokenMinter(0, "", "", 0)
	tok, err := m.Mint("consult_room_1", "patient1", models.RolePatient)
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestMintRequiresAppID(t *testing.T) {
	m := NewTokenMinter(0, testSecret, "", 0)
	_, err := m.Mint("consult_room_1", "doctor1", models.RoleDoctor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_id")
}

func TestMintRejectsShortSecret(t *testing.T) {
	m := NewTokenMinter(42, "too-short", "", 0)
	_, err := m.Mint("consult_room_1", "doctor1", models.RoleDoctor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 characters")
}

func TestMintGeneratesToken(t *testing.T) {
	m := NewTokenMinter(42, testSecret, "", 60)
	tok, err := m.Mint("consult_room_1", "patient1", models.RolePatient)
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	// token04 format: "04" prefix then base64 body
	assert.True(t, strings.HasPrefix(tok, "04"))
}
