package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"treasury-backend/internal/app"
	"treasury-backend/internal/config"
	"treasury-backend/internal/handlers"
	"treasury-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// corsMiddleware CORS middleware
// Priority: Environment Variable > YAML Config > Default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		var allowedOrigins []string
		allowCredentials := true
		maxAge := 3600

		if envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); envOrigins != "" {
			for _, o := range strings.Split(envOrigins, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		} else {
			allowedOrigins = []string{"*"}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					allowed = true
					break
				}
			}
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
			} else {
				logrus.WithFields(logrus.Fields{
					"request_origin": origin,
					"path":           c.Request.URL.Path,
					"method":         c.Request.Method,
					"remote_addr":    c.ClientIP(),
				}).Warn("CORS: request blocked, origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SetupRouter wires the HTTP surface over the service container
func SetupRouter(container *app.ServiceContainer, logger *logrus.Logger) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "treasury-backend",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	SetupTreasuryRoutes(r, container, logger)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "Endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api endpoints for available APIs",
		})
	})

	return r
}

// SetupTreasuryRoutes registers the /api route groups. Everything except
// token issuance sits behind the session-verifying auth middleware.
func SetupTreasuryRoutes(r *gin.Engine, container *app.ServiceContainer, logger *logrus.Logger) {
	authHandler := handlers.NewAuthHandler(container.SessionService, logger)
	authorizationHandler := handlers.NewAuthorizationHandler(container.AuthorizationService)
	multisigHandler := handlers.NewMultisigHandler(container.MultisigService)
	lockHandler := handlers.NewLockHandler(container.LockService)
	callChainHandler := handlers.NewCallChainHandler(container.CallChainService)
	dependencyHandler := handlers.NewDependencyHandler(container.DependencyService)
	paymentHandler := handlers.NewPaymentHandler(container.PaymentRetryService)

	auth := middleware.NewAuthMiddleware(container.SessionService, logger)

	api := r.Group("/api")

	// Public: token issuance binds the session and returns the JWT
	api.POST("/auth/token", authHandler.IssueToken)

	protected := api.Group("")
	protected.Use(auth.RequireAuth())

	authorizations := protected.Group("/authorizations")
	{
		authorizations.POST("/sign", authorizationHandler.SignAuthorization)
		authorizations.POST("/validate", authorizationHandler.ValidateAuthorization)
	}

	multisig := protected.Group("/multisig")
	{
		multisig.POST("/wallets", multisigHandler.CreateWallet)
		multisig.GET("/wallets/:walletId", multisigHandler.GetWallet)
		multisig.POST("/transactions", multisigHandler.Propose)
		multisig.GET("/transactions", multisigHandler.ListTransactions)
		multisig.GET("/transactions/:transactionId", multisigHandler.GetTransaction)
		multisig.POST("/transactions/:transactionId/confirm", multisigHandler.Confirm)
		multisig.POST("/transactions/:transactionId/execute", multisigHandler.Execute)
		multisig.POST("/transactions/:transactionId/repropose", multisigHandler.Repropose)
		multisig.GET("/status", multisigHandler.GetSystemStatus)
		multisig.POST("/predict-address", multisigHandler.PredictAddress)
	}

	locks := protected.Group("/locks")
	{
		locks.POST("", lockHandler.Acquire)
		locks.POST("/:lockId/consume", lockHandler.Consume)
	}

	callchains := protected.Group("/callchains")
	{
		callchains.POST("/:operationId/steps", callChainHandler.RecordStep)
		callchains.GET("/:operationId/validate", callChainHandler.Validate)
	}

	dependencies := protected.Group("/dependencies")
	{
		dependencies.POST("", dependencyHandler.Register)
		dependencies.GET("/:transactionId", dependencyHandler.List)
		dependencies.GET("/:transactionId/can-execute", dependencyHandler.CanExecute)
	}

	protected.POST("/payments/fetch", paymentHandler.Fetch)
}
