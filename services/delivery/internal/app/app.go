package app

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/delivery/pkg"
	"github.com/appetiteclub/delivery/pkg/event"
	"github.com/appetiteclub/delivery/services/delivery/internal/delivery"
	"github.com/appetiteclub/delivery/services/delivery/internal/events"
	"github.com/appetiteclub/delivery/services/delivery/internal/mongo"
	"github.com/aquamarinepk/aqm"
	aqmevents "github.com/aquamarinepk/aqm/events"
	"github.com/aquamarinepk/aqm/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	AppName    = "delivery"
	AppVersion = "0.1.0"
)

// App encapsulates the delivery service application
type App struct {
	config *aqm.Config
	logger aqm.Logger
	micro  *aqm.Micro
	base   *mongo.BaseRepo
}

func New(config *aqm.Config, logger aqm.Logger) (*App, error) {
	if config == nil {
		return nil, fmt.Errorf("%s: config is required", AppName)
	}
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &App{
		config: config,
		logger: logger,
	}, nil
}

// Initialize connects the stores and transport and builds the HTTP service.
func (a *App) Initialize(ctx context.Context) error {
	a.base = mongo.NewBaseRepo(a.config, a.logger)
	if err := a.base.Start(ctx); err != nil {
		return err
	}
	db := a.base.GetDatabase()

	orders := mongo.NewOrderRepo(db)
	carts := mongo.NewCartRepo(db)
	couriers := mongo.NewCourierRepo(db)
	menus := mongo.NewMenuRepo(db)

	fee, err := a.deliveryFee()
	if err != nil {
		return err
	}
	loc := a.location()
	clock := func() time.Time { return time.Now().UTC() }
	localClock := func() time.Time { return time.Now().In(loc) }

	natsURL, _ := a.config.GetString("nats.url")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	var orderStream *pkg.NATSStream
	var eventPublisher aqmevents.Publisher

	streamEnabled, _ := a.config.GetString("nats.stream.enabled")
	if streamEnabled == "true" {
		streamCfg := pkg.NATSStreamConfig{
			URL:          natsURL,
			StreamName:   "ORDER_EVENTS",
			Topic:        event.OrderLifecycleTopic,
			ConsumerName: "delivery-feed",
			MaxAge:       24 * time.Hour,
		}
		orderStream, err = pkg.NewNATSStream(ctx, streamCfg)
		if err != nil {
			return err
		}
		a.logger.Info("NATS stream initialized for persistent order events")
		eventPublisher = orderStream
	} else {
		publisher, err := pkg.NewNATSPublisher(natsURL)
		if err != nil {
			return err
		}
		eventPublisher = publisher
	}

	orderSubscriber, err := pkg.NewNATSSubscriber(natsURL, a.logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := delivery.NewMetrics(registry)

	var streamForFeed aqmevents.StreamConsumer
	if orderStream != nil {
		streamForFeed = orderStream
	}
	feed := delivery.NewOrderFeed(streamForFeed, orders, metrics, a.logger)

	lifecycle := delivery.NewLifecycle(delivery.LifecycleDeps{
		Orders:    orders,
		Publisher: eventPublisher,
		Observer:  feed,
		Metrics:   metrics,
		Clock:     clock,
	}, a.logger)

	dispatcher := delivery.NewDispatcher(delivery.DispatcherDeps{
		Lifecycle: lifecycle,
		Orders:    orders,
		Couriers:  couriers,
		Feed:      feed,
		Metrics:   metrics,
		Clock:     clock,
	}, a.logger)

	menuService := delivery.NewMenuService(menus, localClock, a.logger)

	cartService := delivery.NewCartService(delivery.CartServiceDeps{
		Carts:       carts,
		Menus:       menus,
		Lifecycle:   lifecycle,
		DeliveryFee: fee,
		Metrics:     metrics,
		Clock:       localClock,
	}, a.logger)

	if seed, _ := a.config.GetString("seeding.demo"); seed == "true" {
		today := delivery.MenuKey(localClock())
		if err := delivery.ApplyDemoSeeds(ctx, menuService, db, today, a.logger); err != nil {
			a.logger.Errorf("Demo seeding failed (non-fatal): %v", err)
		}
	}

	eventSubscriber := events.NewOrderLifecycleSubscriber(orderSubscriber, feed, a.logger)

	handler := delivery.NewHandler(delivery.HandlerDeps{
		Lifecycle:  lifecycle,
		Dispatcher: dispatcher,
		Carts:      cartService,
		Menus:      menuService,
		Feed:       feed,
		Clock:      clock,
		Location:   loc,
	}, a.config, a.logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      a.logger,
		DisableCORS: true,
	})
	stack = append(stack, middleware.InternalOnly())

	feedLifecycle := aqm.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			if err := feed.Warm(ctx); err != nil {
				a.logger.Info("failed to warm order feed", "error", err)
			}
			return nil
		},
	}

	lifecycles := []interface{}{feedLifecycle, eventSubscriber}
	lifecycles = append(lifecycles, aqm.LifecycleHooks{
		OnStop: func(context.Context) error { return orderSubscriber.Close() },
	})
	if orderStream != nil {
		lifecycles = append(lifecycles, aqm.LifecycleHooks{
			OnStop: func(context.Context) error { return orderStream.Close() },
		})
	}
	if closer, ok := eventPublisher.(interface{ Close() error }); ok && orderStream == nil {
		lifecycles = append(lifecycles, aqm.LifecycleHooks{
			OnStop: func(context.Context) error { return closer.Close() },
		})
	}
	lifecycles = append(lifecycles, aqm.LifecycleHooks{
		OnStop: a.base.Stop,
	})

	options := []aqm.Option{
		aqm.WithConfig(a.config),
		aqm.WithLogger(a.logger),
		aqm.WithHTTPMiddleware(stack...),
		aqm.WithHTTPServerModules("web.port", handler, metrics),
		aqm.WithLifecycle(lifecycles...),
		aqm.WithHealthChecks(AppName),
	}

	a.micro = aqm.NewMicro(options...)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s(%s)", AppName, AppVersion)
	if err := a.micro.Run(ctx); err != nil {
		return err
	}
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return nil
}

func (a *App) deliveryFee() (delivery.Money, error) {
	raw, _ := a.config.GetString("delivery.fee")
	if raw == "" {
		raw = delivery.DefaultDeliveryFee
	}
	fee, err := delivery.NewMoney(raw)
	if err != nil {
		return delivery.Money{}, fmt.Errorf("delivery.fee: %w", err)
	}
	if fee.IsNegative() {
		return delivery.Money{}, fmt.Errorf("delivery.fee: must not be negative, got %s", raw)
	}
	return fee, nil
}

// location is the time zone "today" refers to for menus and daily stats.
func (a *App) location() *time.Location {
	name, _ := a.config.GetString("delivery.timezone")
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		a.logger.Errorf("unknown delivery.timezone %q, using UTC: %v", name, err)
		return time.UTC
	}
	return loc
}
