package session

import (
	"encoding/json"
	"strings"

	"github.com/jshea2/NMS-DMX-App/internal/live"
)

// inboundMessage is the envelope for client-to-server frames.
type inboundMessage struct {
	Type     string          `json:"type"`
	ClientID string          `json:"clientId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// stateMessage is the full live-state snapshot pushed on connect and after
// every accepted mutation.
type stateMessage struct {
	Type string     `json:"type"`
	Data live.State `json:"data"`
}

// authResultMessage answers a successful auth handshake.
type authResultMessage struct {
	Type     string `json:"type"`
	Role     Role   `json:"role"`
	ClientID string `json:"clientId"`
	ShortID  string `json:"shortId"`
}

// roleUpdateMessage tells a connected client its privilege changed.
type roleUpdateMessage struct {
	Type string `json:"type"`
	Role Role   `json:"role"`
}

// rosterEntry is one active client in an activeClients broadcast.
type rosterEntry struct {
	ID       string `json:"id"`
	ShortID  string `json:"shortId"`
	Role     Role   `json:"role"`
	Nickname string `json:"nickname"`
}

// rosterMessage lists the currently connected clients.
type rosterMessage struct {
	Type               string        `json:"type"`
	Clients            []rosterEntry `json:"clients"`
	ShowConnectedUsers bool          `json:"showConnectedUsers"`
}

// denialMessage carries a permissionDenied or accessDenied notice.
type denialMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ShortID derives the display id shown next to a client: the first six
// characters of the device id, uppercased.
func ShortID(clientID string) string {
	if len(clientID) > 6 {
		clientID = clientID[:6]
	}
	return strings.ToUpper(clientID)
}
