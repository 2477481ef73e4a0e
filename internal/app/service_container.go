package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"treasury-backend/internal/clients"
	"treasury-backend/internal/config"
	"treasury-backend/internal/db"
	"treasury-backend/internal/events"
	"treasury-backend/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer wires clients and services once at startup
type ServiceContainer struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	// Clients
	SignerClient *clients.SignerClient
	RelayClient  *clients.RelayClient
	ChainReader  *clients.EthChainReader
	Publisher    *events.Publisher

	// Core Services
	NonceRegistry        *services.NonceRegistry
	AuthorizationService *services.AuthorizationService
	LockService          *services.LockService
	CallChainService     *services.CallChainService
	SessionService       *services.SessionService
	MultisigService      *services.MultisigService
	DependencyService    *services.DependencyService
	PaymentRetryService  *services.PaymentRetryService
	GCService            *services.GCService

	gcCancel context.CancelFunc
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once and starts the background
// workers
func InitializeContainer(logger *logrus.Logger) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		cfg := config.AppConfig
		if cfg == nil {
			initErr = fmt.Errorf("configuration not loaded")
			return
		}

		container := &ServiceContainer{
			DB:     db.DB,
			Logger: logger,
		}

		container.SignerClient = clients.NewSignerClient(cfg.Signer)
		container.RelayClient = clients.NewRelayClient(cfg.Relayer)

		// One chain reader per deployment; the first enabled network with
		// an RPC endpoint wins
		for _, network := range cfg.Blockchain.Networks {
			if !network.Enabled || len(network.RPCEndpoints) == 0 {
				continue
			}
			n := network
			reader, err := clients.NewEthChainReader(&n)
			if err != nil {
				logger.WithError(err).WithField("chain_id", n.ChainID).Warn("failed to dial chain RPC")
				continue
			}
			container.ChainReader = reader
			break
		}
		if container.ChainReader == nil {
			logger.Warn("no chain reader available; execution sequence re-checks and deploy verification are disabled")
		}

		publisher, err := events.NewPublisher(cfg.NATS, logger)
		if err != nil {
			// Event publishing is best effort; run without it
			logger.WithError(err).Warn("NATS unavailable, lifecycle events disabled")
		}
		container.Publisher = publisher

		container.NonceRegistry = services.NewNonceRegistry(container.DB)
		container.AuthorizationService = services.NewAuthorizationService(
			container.SignerClient, container.NonceRegistry, container.Publisher, logger, cfg)
		container.LockService = services.NewLockService(container.DB, cfg.Lock)
		container.CallChainService = services.NewCallChainService(container.DB, cfg.CallChain)
		container.SessionService = services.NewSessionService(container.DB, logger, cfg.Session)
		// A typed-nil reader must not leak into the interface
		var reader services.ChainReader
		if container.ChainReader != nil {
			reader = container.ChainReader
		}
		container.MultisigService = services.NewMultisigService(
			container.DB, reader, container.RelayClient, container.Publisher, logger)
		container.DependencyService = services.NewDependencyService(container.DB)

		ceiling, ok := new(big.Int).SetString(cfg.Payment.MicroPaymentCeilingWei, 10)
		if !ok {
			ceiling = big.NewInt(0)
		}
		container.PaymentRetryService = services.NewPaymentRetryService(
			container.AuthorizationService, services.AutoAcceptBelow(ceiling), logger)

		container.GCService = services.NewGCService(container.DB, logger, cfg.GC, cfg.Lock)
		gcCtx, cancel := context.WithCancel(context.Background())
		container.gcCancel = cancel
		go container.GCService.Start(gcCtx)

		Container = container
		logger.Info("service container initialized")
	})

	return Container, initErr
}

// Cleanup stops background workers and closes external connections
func (c *ServiceContainer) Cleanup() {
	if c.gcCancel != nil {
		c.gcCancel()
	}
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	c.Logger.Info("service container cleaned up")
}
