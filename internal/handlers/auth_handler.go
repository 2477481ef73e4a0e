package handlers

import (
	"fmt"
	"net/http"
	"time"

	"treasury-backend/internal/config"
	"treasury-backend/internal/dto"
	"treasury-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// AuthHandler issues session tokens. Issuing a token also binds the
// session to the wallet — the binding is first-write-wins and holds for
// the session's entire lifetime, so a token re-requested for the same
// session with a different wallet is refused.
type AuthHandler struct {
	sessions *services.SessionService
	logger   *logrus.Logger
}

// NewAuthHandler creates the auth handler
func NewAuthHandler(sessions *services.SessionService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger}
}

// IssueToken binds the session to the wallet and returns a signed JWT
// POST /api/auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req dto.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{
			Success: false,
			Message: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	if err := h.sessions.Bind(c.Request.Context(), req.SessionID, req.WalletAddress); err != nil {
		respondError(c, err)
		return
	}

	token, err := GenerateJWTToken(req.SessionID, req.WalletAddress, req.ChainID)
	if err != nil {
		h.logger.WithError(err).Error("failed to sign session token")
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{
			Success: false,
			Message: "failed to sign token",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"wallet":     req.WalletAddress,
		"chain_id":   req.ChainID,
	}).Info("session token issued")

	c.JSON(http.StatusOK, dto.AuthResponse{
		Success: true,
		Token:   token,
	})
}

// GenerateJWTToken signs a session token with the configured secret
func GenerateJWTToken(sessionID, walletAddress string, chainID int64) (string, error) {
	cfg := config.AppConfig.Auth
	now := time.Now()
	claims := dto.JWTClaims{
		SessionID:     sessionID,
		WalletAddress: walletAddress,
		ChainID:       chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.TokenTTL) * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ValidateJWTToken parses and verifies a session token
func ValidateJWTToken(tokenString string) (*dto.JWTClaims, error) {
	claims := &dto.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.Auth.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
