package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/storeforge/api/internal/payments"
	"github.com/storeforge/api/internal/platform/config"
	"github.com/storeforge/api/internal/repositories"
	"github.com/storeforge/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Access    services.AccessService
	OrderFlow services.OrderFlowService
	POS       services.POSService
	Webhooks  services.WebhookService
	Stock     services.StockService
	System    services.SystemService
}

// Dependencies carries the infrastructure a container needs. Registry and Providers are
// required; the rest fall back to sensible defaults so tests can wire minimal containers.
type Dependencies struct {
	Config    config.Config
	Registry  repositories.Registry
	Providers *payments.Manager
	Events    services.OrderEventPublisher
	Build     services.BuildInfo
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore-backed
// repositories, while tests can supply in-memory registries.
func NewContainer(deps Dependencies) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(deps Dependencies) (Services, error) {
	reg := deps.Registry
	cfg := deps.Config

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idGenerator := func() string {
		return ulid.Make().String()
	}

	var svc Services

	access, err := services.NewAccessService(services.AccessServiceDeps{
		Staff:  reg.Staff(),
		Stores: reg.Stores(),
		Logger: zapEventLogger(logger.Named("access")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build access service: %w", err)
	}
	svc.Access = access

	flow, err := services.NewOrderFlowService(services.OrderFlowServiceDeps{
		Orders:          reg.Orders(),
		Payments:        reg.Payments(),
		Refunds:         reg.Refunds(),
		Stores:          reg.Stores(),
		Providers:       deps.Providers,
		UnitOfWork:      reg,
		Events:          deps.Events,
		Clock:           clock,
		IDGenerator:     idGenerator,
		Logger:          zapEventLogger(logger.Named("order_flow")),
		AutoFinishAfter: cfg.Jobs.AutoFinishAfter,
		AutoFinishBatch: cfg.Jobs.AutoFinishBatch,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order flow service: %w", err)
	}
	svc.OrderFlow = flow

	pos, err := services.NewPOSService(services.POSServiceDeps{
		Access:       access,
		Stores:       reg.Stores(),
		Orders:       reg.Orders(),
		Payments:     reg.Payments(),
		Stock:        reg.Stock(),
		Counters:     reg.Counters(),
		OrderNumbers: reg.OrderNumbers(),
		UnitOfWork:   reg,
		Events:       deps.Events,
		Clock:        clock,
		IDGenerator:  idGenerator,
		Logger:       zapEventLogger(logger.Named("pos")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pos service: %w", err)
	}
	svc.POS = pos

	webhooks, err := services.NewWebhookService(services.WebhookServiceDeps{
		Payments: reg.Payments(),
		Orders:   reg.Orders(),
		Flow:     flow,
		Clock:    clock,
		Logger:   zapEventLogger(logger.Named("webhooks")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build webhook service: %w", err)
	}
	svc.Webhooks = webhooks

	stock, err := services.NewStockService(services.StockServiceDeps{
		Stock:       reg.Stock(),
		Clock:       clock,
		IDGenerator: idGenerator,
		Logger:      zapEventLogger(logger.Named("stock")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock service: %w", err)
	}
	svc.Stock = stock

	if healthRepo := reg.Health(); healthRepo != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Counters:         reg.Counters(),
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for key, value := range fields {
			zFields = append(zFields, zap.Any(key, value))
		}
		logger.Debug("service event", zFields...)
	}
}
