package rtc

import (
	"encoding/json"
	"fmt"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"

	"github.com/vitalink/telecare/internal/models"
)

// roomPayload is the token04 payload granting login/publish privileges for a
// consultation room.
type roomPayload struct {
	RoomID       string      `json:"RoomId"`
	Privilege    map[int]int `json:"Privilege"`
	StreamIDList []string    `json:"StreamIdList,omitempty"`
}

// TokenMinter generates provider room tokens for consultation channels.
// A static development token, when configured, takes priority over minting;
// with neither present the engine joins tokenless (testing mode only).
type TokenMinter struct {
	appID        uint32
	serverSecret string
	staticToken  string
	ttlSeconds   int64
}

// NewTokenMinter creates a token minter. serverSecret must be 32 characters
// when minting is used; staticToken may be empty.
func NewTokenMinter(appID uint32, serverSecret, staticToken string, ttlSeconds int64) *TokenMinter {
	if ttlSeconds <= 0 {
		ttlSeconds = 3600
	}
	return &TokenMinter{appID: appID, serverSecret: serverSecret, staticToken: staticToken, ttlSeconds: ttlSeconds}
}

// Mint returns a join token for the channel. Both patient and doctor publish
// media in a consultation, so every role gets publish privilege.
func (m *TokenMinter) Mint(channelID, userID string, role models.Role) (string, error) {
	if m.staticToken != "" {
		return m.staticToken, nil
	}
	if m.serverSecret == "" {
		return "", nil
	}
	if m.appID == 0 {
		return "", fmt.Errorf("rtc: app_id required to mint token")
	}
	if len(m.serverSecret) != 32 {
		return "", fmt.Errorf("rtc: server_secret must be 32 characters")
	}
	privilege := map[int]int{
		token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
		token04.PrivilegeKeyPublish: token04.PrivilegeEnable,
	}
	payload := roomPayload{
		RoomID:    channelID,
		Privilege: privilege,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("rtc: marshal token payload: %w", err)
	}
	token, err := token04.GenerateToken04(m.appID, userID, m.serverSecret, m.ttlSeconds, string(payloadJSON))
	if err != nil {
		return "", fmt.Errorf("rtc: generate token for role %s: %w", role, err)
	}
	return token, nil
}
