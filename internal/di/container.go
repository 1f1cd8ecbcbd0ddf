package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukisoft/ownplate/internal/platform/config"
	"github.com/ukisoft/ownplate/internal/repositories"
	"github.com/ukisoft/ownplate/internal/services"
)

// Infrastructure holds the adapters the services are built on. Main assembles it from
// configuration; tests pass fakes.
type Infrastructure struct {
	Store     repositories.OrderStore
	Processor services.PaymentProcessor
	Notifier  services.Notifier
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders   services.OrderService
	Payments services.PaymentService
}

// Container wires infrastructure into services and owns shutdown of what it was handed.
type Container struct {
	Config   config.Config
	Services Services

	closers []func(context.Context) error
}

// NewContainer constructs the runtime services.
func NewContainer(cfg config.Config, infra Infrastructure) (*Container, error) {
	if infra.Store == nil {
		return nil, errors.New("di: order store is required")
	}
	if infra.Processor == nil {
		return nil, errors.New("di: payment processor is required")
	}

	region := RegionFromConfig(cfg.Region)
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Store:    infra.Store,
		Notifier: infra.Notifier,
		Region:   region,
		Clock:    infra.Clock,
		Logger:   infra.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	payments, err := services.NewPaymentService(services.PaymentServiceDeps{
		Store:     infra.Store,
		Processor: infra.Processor,
		Notifier:  infra.Notifier,
		Region:    region,
		Clock:     infra.Clock,
		Logger:    infra.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment service: %w", err)
	}

	return &Container{
		Config:   cfg,
		Services: Services{Orders: orders, Payments: payments},
	}, nil
}

// RegionFromConfig converts the loaded region settings into the service representation.
func RegionFromConfig(cfg config.RegionConfig) services.RegionConfig {
	return services.RegionConfig{
		Currency: cfg.Currency,
		Multiple: cfg.Multiple,
		Location: cfg.Location(),
		Locale:   cfg.DefaultLocale,
	}
}

// OnClose registers a shutdown hook. Hooks run in reverse registration order.
func (c *Container) OnClose(fn func(context.Context) error) {
	if c == nil || fn == nil {
		return
	}
	c.closers = append(c.closers, fn)
}

// Close runs every shutdown hook and joins their errors.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
