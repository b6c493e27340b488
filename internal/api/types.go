package api

import "time"

// DefaultPaginationTimeout bounds ListAll when the caller's context has no deadline.
const DefaultPaginationTimeout = 2 * time.Minute

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse from POST /auth/login.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
