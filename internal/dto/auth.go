package dto

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims the token payload binding a caller to a session and wallet.
// The wallet address here is what the session binder verifies every
// authenticated request against.
type JWTClaims struct {
	SessionID     string `json:"session_id"`
	WalletAddress string `json:"wallet_address"`
	ChainID       int64  `json:"chain_id"`
	jwt.RegisteredClaims
}

// AuthRequest token issuance request
type AuthRequest struct {
	SessionID     string `json:"session_id" binding:"required"`
	WalletAddress string `json:"wallet_address" binding:"required"`
	ChainID       int64  `json:"chain_id" binding:"required"`
}

// AuthResponse token issuance response
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}
