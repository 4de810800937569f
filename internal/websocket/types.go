package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"codeberg.org/pairview/server/internal/registry"
	"codeberg.org/pairview/server/pairview/sessions"
)

// message type constants for websocket communication
const (
	// client -> server: apply an edit against a base version
	TypeEdit = "edit"

	// server -> sender: edit accepted, carries the new version
	TypeEditAck = "edit_ack"

	// server -> sender: stale base version, carries authoritative state
	TypeEditRejected = "edit_rejected"

	// server -> others: an accepted edit to relay
	TypeEditBroadcast = "edit_broadcast"

	// client -> server: cursor moved (ephemeral, never persisted)
	TypeCursor = "cursor"

	// server -> others: relayed cursor position
	TypeCursorBroadcast = "cursor_broadcast"

	// client -> server: change language/editor config
	TypeConfig = "config"

	// server -> all: relayed config change
	TypeConfigBroadcast = "config_broadcast"

	// is sent to connecting client with session info
	TypeSessionState = "session_state"

	// is sent when a new user joins the session
	TypeUserJoined = "user_joined"

	// is sent when a user leaves the session
	TypeUserLeft = "user_left"

	// is sent when the owner ends the session or it expires
	TypeSessionEnded = "session_ended"

	// is sent by server before shutdown
	TypeServerShutdown = "server_shutdown"

	// is sent when an error occurs
	TypeError = "error"

	// is sent by clients to keep the connection alive
	TypePing = "ping"

	// is sent by server in response to ping
	TypePong = "pong"
)

// connection lifecycle states
const (
	StateConnecting = iota
	StateAuthorizing
	StateActive
	StateClosing
	StateClosed
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512 KB

	// maximum content size accepted in an edit
	maxContentSize = 200 * 1024 // 200 KB

	// rate limits per connection
	editEventsPerSecond   = 20
	editBurst             = 40
	cursorEventsPerSecond = 60
	cursorBurst           = 120
)

// errors
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidMessage    = errors.New("invalid message format")
	ErrReadOnly          = errors.New("read-only access")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrContentTooLarge   = errors.New("content too large")
	ErrNotActive         = errors.New("connection not active")
)

// represents a websocket message with typed payload
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	ClientID  string          `json:"-"` // internal only, not sent to clients
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  uint64          `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// carries an edit against a known base version; patch is the full
// replacement content
type EditPayload struct {
	BaseVersion int64  `json:"base_version"`
	Patch       string `json:"patch"`
}

// acknowledges an accepted edit
type EditAckPayload struct {
	Version int64 `json:"version"`
}

// tells a sender their edit lost the version race; the client rebases on
// the returned authoritative state and resubmits
type EditRejectedPayload struct {
	Version int64  `json:"version"`
	Content string `json:"content"`
}

// relays an accepted edit to the other participants. Version is the
// ordering authority: receivers must discard a patch whose version is at or
// below the last one they applied.
type EditBroadcastPayload struct {
	Version      int64  `json:"version"`
	Patch        string `json:"patch"`
	AuthorUserID string `json:"author_user_id,omitempty"`
}

// carries a cursor position
type CursorPayload struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// relays a cursor position to the other participants
type CursorBroadcastPayload struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Line        int    `json:"line"`
	Col         int    `json:"col"`
}

// carries a language/editor config change
type ConfigPayload struct {
	Language     string                `json:"language,omitempty"`
	EditorConfig sessions.EditorConfig `json:"editor_config"`
}

// relays a config change to all participants
type ConfigBroadcastPayload struct {
	Language     string                `json:"language,omitempty"`
	EditorConfig sessions.EditorConfig `json:"editor_config"`
	AuthorUserID string                `json:"author_user_id,omitempty"`
}

// contains session info sent to connecting client
type SessionStatePayload struct {
	YourRole     string                    `json:"your_role"`
	Version      int64                     `json:"version"`
	Content      string                    `json:"content"`
	Language     string                    `json:"language,omitempty"`
	EditorConfig sessions.EditorConfig     `json:"editor_config"`
	Participants []SessionStateParticipant `json:"participants"`
}

// represents a participant in session_state
type SessionStateParticipant struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// contains information about a newly joined user
type UserJoinedPayload struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// contains information about a user who left
type UserLeftPayload struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name"`
}

// contains session termination information
type SessionEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// contains information about server shutdown
type ServerShutdownPayload struct {
	Reason string `json:"reason"`
}

// represents a websocket client connection
type Client struct {
	// unique identifier for this connection
	ID string

	// session ID this client is attached to
	SessionID string

	// authenticated user
	UserID string

	// display name for this client
	DisplayName string

	// role in the session (owner, participant, observer)
	Role string

	// IP address of the client
	IPAddress string

	// snapshot to send in session_state on connect
	InitialSnapshot registry.Snapshot

	// websocket connection
	conn *websocket.Conn

	// hub reference for message broadcasting
	hub *Hub

	// buffered channel of outbound messages
	send chan []byte

	// mutex for thread-safe operations
	mu sync.RWMutex

	// connection lifecycle state
	state int

	// flag indicating if client is closed
	closed bool

	// per-connection event rate limiters
	editLimiter   *rate.Limiter
	cursorLimiter *rate.Limiter
}

// maintains the set of active clients and relays messages between the
// participants of a session
type Hub struct {
	// registered clients by session ID and client ID
	sessions map[string]map[string]*Client

	// register requests from clients
	Register chan *Client

	// unregister requests from clients
	Unregister chan *Client

	// inbound messages from clients
	Broadcast chan *Message

	// live session state arena; attach/detach follow register/unregister
	registry *registry.Registry

	// mutex for thread-safe access to sessions
	mu sync.RWMutex

	// message handlers for different message types
	handlers map[string]MessageHandler

	// channel to signal shutdown; closed exactly once
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// sequence numbers per session for message ordering
	sessionSequences map[string]uint64

	// callback for client disconnect (e.g., flush snapshot); wasLast is
	// true when the session has no remaining connections
	onClientDisconnect func(client *Client, wasLast bool)
}

// processes a specific message type
type MessageHandler func(hub *Hub, client *Client, msg *Message) error
