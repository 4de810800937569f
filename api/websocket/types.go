package websocket

type ConnectParams struct {
	SessionID   string `form:"session_id" binding:"required"`
	Token       string `form:"token" binding:"required"`       // jwt bearer token
	DisplayName string `form:"display_name" binding:"max=100"` // optional display name
}
