package flush

// represents a session snapshot waiting to be persisted
type BufferedSnapshot struct {
	SessionID string `json:"session_id"`
	Version   int64  `json:"version"`
	Content   string `json:"content"`
}

// redis key patterns
const (
	// session:{sessionID}:snapshot - latest unflushed {version, content} as JSON
	keySessionSnapshot = "session:%s:snapshot"

	// dirty_sessions - set of session IDs with unflushed snapshots
	keyDirtySessions = "dirty_sessions"
)
