package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/aquamarinepk/aqm/middleware"

	"github.com/appetiteclub/orderflow/pkg"
	pkgevent "github.com/appetiteclub/orderflow/pkg/event"
	"github.com/appetiteclub/orderflow/services/order/internal/app"
	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

const (
	appNamespace = "ORDERFLOW"
	appName      = "orderflow"
	appVersion   = "0.1.0"
)

func main() {
	config, err := aqm.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("Cannot setup %s(%s): %v", appName, appVersion, err)
	}

	logLevel, _ := config.GetString("log.level")
	logger := aqm.NewLogger(logLevel)

	settings, err := app.LoadSettings(config)
	if err != nil {
		log.Fatalf("%s(%s) invalid configuration: %v", appName, appVersion, err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	storage, err := app.OpenStorage(ctx, config, settings, logger)
	if err != nil {
		log.Fatalf("%s(%s) cannot open storage: %v", appName, appVersion, err)
	}

	var publisher events.Publisher
	var publisherClose func() error
	if settings.StreamEnabled {
		stream, err := pkg.NewNATSStream(ctx, pkg.NATSStreamConfig{
			URL:        settings.NATSURL,
			StreamName: "TICKET_EVENTS",
			Subjects:   []string{pkgevent.TicketStreamSubjects},
			MaxAge:     24 * time.Hour,
		})
		if err != nil {
			log.Fatalf("%s(%s) cannot connect to NATS stream: %v", appName, appVersion, err)
		}
		publisher, publisherClose = stream, stream.Close
	} else {
		pub, err := pkg.NewNATSPublisher(settings.NATSURL)
		if err != nil {
			log.Fatalf("%s(%s) cannot connect to NATS publisher: %v", appName, appVersion, err)
		}
		publisher, publisherClose = pub, pub.Close
	}

	sub, err := pkg.NewNATSSubscriber(settings.NATSURL, logger)
	if err != nil {
		log.Fatalf("%s(%s) cannot connect to NATS subscriber: %v", appName, appVersion, err)
	}

	core := app.NewCore(app.CoreDeps{
		Storage:   storage,
		Publisher: publisher,
		Menu:      app.MenuCatalog(settings),
		Settings:  settings,
	}, logger)

	ticketStatusSub := order.NewTicketStatusSubscriber(sub, core.Router, logger)

	handler := order.NewHandler(order.HandlerDeps{
		Reader:    storage.SQL,
		Events:    storage.ExternalEvents(),
		Projector: core.Projector,
		Router:    core.Router,
	}, config, logger)

	health := order.NewHealthModule(appName)

	messagingLifecycle := aqm.LifecycleHooks{
		OnStop: func(context.Context) error {
			_ = sub.Close()
			return publisherClose()
		},
	}

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      logger,
		DisableCORS: true,
	})
	stack = append(stack, middleware.InternalOnly())

	options := []aqm.Option{
		aqm.WithConfig(config),
		aqm.WithLogger(logger),
		aqm.WithHTTPMiddleware(stack...),
		aqm.WithHTTPServerModules("web.port", handler),
		aqm.WithGRPCServerModules("grpc.port", health),
		aqm.WithLifecycle(
			ticketStatusSub,
			core.Reconciler,
			messagingLifecycle,
			aqm.LifecycleHooks{OnStop: storage.Stop},
		),
		aqm.WithHealthChecks(appName),
	}

	ms := aqm.NewMicro(options...)
	logger.Infof("Starting %s(%s) with %s storage and %s events", appName, appVersion, settings.Driver, settings.EventsSource)

	if err := ms.Run(ctx); err != nil {
		_ = storage.Stop(context.Background())
		log.Fatalf("%s(%s) stopped with error: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}
