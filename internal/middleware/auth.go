package middleware

import (
	"net/http"
	"strings"

	"treasury-backend/internal/errs"
	"treasury-backend/internal/handlers"
	"treasury-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware authenticates requests with a session JWT and verifies
// the session binding on every call. The token alone is not enough: the
// wallet it names must still match the one the session was bound to, and
// the session must have quota left — both checks run here, before any
// handler.
type AuthMiddleware struct {
	sessions *services.SessionService
	logger   *logrus.Logger
}

// NewAuthMiddleware creates the auth middleware
func NewAuthMiddleware(sessions *services.SessionService, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, logger: logger}
}

// RequireAuth rejects requests without a valid token and verified session
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, http.StatusUnauthorized, "Authentication required",
				"Missing Authorization header", "MISSING_AUTH_HEADER")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.reject(c, http.StatusUnauthorized, "Invalid authorization format",
				"Authorization header must be in format: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			a.reject(c, http.StatusUnauthorized, "Empty token",
				"Token cannot be empty", "EMPTY_TOKEN")
			return
		}

		claims, err := handlers.ValidateJWTToken(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("token verification failed")
			a.reject(c, http.StatusUnauthorized, "Invalid or expired token",
				err.Error(), "INVALID_TOKEN")
			return
		}

		// The binding check also counts this request against the session
		// quota
		if err := a.sessions.Verify(c.Request.Context(), claims.SessionID, claims.WalletAddress); err != nil {
			a.reject(c, errs.HTTPStatus(err), err.Error(), err.Error(), errs.Code(err))
			return
		}

		c.Set("session_id", claims.SessionID)
		c.Set("wallet_address", claims.WalletAddress)
		c.Set("chain_id", claims.ChainID)

		c.Next()
	}
}

func (a *AuthMiddleware) reject(c *gin.Context, status int, errMsg, message, code string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   errMsg,
		"message": message,
		"code":    code,
	})
	c.Abort()
}
