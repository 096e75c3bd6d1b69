package api

import "encoding/json"

// Result is the uniform response envelope. Every endpoint returns it, for
// success and failure alike.
type Result struct {
	OK      bool            `json:"ok"`
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionData is the data payload of a successful register, login or
// session lookup.
type SessionData struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username,omitempty"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}
