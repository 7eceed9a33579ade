package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/bus-seat-reservation/internal/config"
	"github.com/iliyamo/bus-seat-reservation/internal/database"
	"github.com/iliyamo/bus-seat-reservation/internal/handler"
	"github.com/iliyamo/bus-seat-reservation/internal/middleware"
	"github.com/iliyamo/bus-seat-reservation/internal/queue"
	"github.com/iliyamo/bus-seat-reservation/internal/repository"
	"github.com/iliyamo/bus-seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/bus-seat-reservation/internal/router"
	"github.com/iliyamo/bus-seat-reservation/internal/service"
	"github.com/iliyamo/bus-seat-reservation/internal/worker"
)

// backend is one storage implementation behind the service interfaces.
type backend struct {
	tx           service.Transactor
	trips        service.TripRepository
	reservations service.ReservationRepository
	routes       interface {
		service.RouteRepository
		handler.RouteStore
	}
	buses interface {
		service.BusRepository
		handler.BusStore
	}
	ping  func(ctx context.Context) error
	close func() error
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer func() {
		if err := store.close(); err != nil {
			log.Printf("storage: close: %v", err)
		}
	}()

	var events service.EventPublisher = service.LogPublisher{}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.RabbitMQURL)
		defer pub.Close()
		events = pub
	}

	seats := service.NewSeatAllocationService(store.trips, service.SeatLayout{SeatsPerRow: cfg.SeatsPerRow, FrontRows: cfg.FrontRows})
	reservations := service.NewReservationService(store.tx, store.trips, store.reservations, store.routes, seats, events,
		service.ReservationConfig{
			CancellationDeadline: cfg.CancellationDeadline,
			MaxRetries:           cfg.MaxRetries,
			Location:             cfg.TripLocation,
		})
	scheduler := service.NewTripScheduler(store.tx, store.trips, store.routes, store.buses, seats, reservations, events, cfg.TripLocation)

	if cfg.SeedDemo {
		if err := seedDemo(ctx, store, scheduler, cfg); err != nil {
			log.Printf("seed: %v", err)
		}
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	reservationHandler := handler.NewReservationHandler(reservations, cfg.CancellationFee)
	router.RegisterRoutes(e, store.ping)
	router.RegisterPublic(e, handler.NewTripHandler(seats, scheduler), middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterPassenger(e, reservationHandler, cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		middleware.NewIdempotency("bus", cfg.IdempotencyTTL, rdb))
	router.RegisterAdmin(e, handler.NewAdminHandler(scheduler, store.routes, store.buses, cfg.DefaultCurrency), reservationHandler, cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s storage=%s)", addr, cfg.Env, cfg.Storage)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})
	g.Go(func() error {
		return worker.NewExpiryWorker(reservations, cfg.ExpiryInterval).Run(gctx)
	})
	if cfg.EventsEnabled {
		g.Go(func() error {
			err := queue.StartTripEventConsumer(gctx, cfg.RabbitMQURL, cfg.EventLogPath)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	log.Printf("shutdown complete")
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	if cfg.Storage == config.StorageMemory {
		s := memstore.New()
		log.Printf("storage: in-memory (data is lost on exit)")
		return &backend{
			tx:           s,
			trips:        s.Trips(),
			reservations: s.Reservations(),
			routes:       s.Routes(),
			buses:        s.Buses(),
			close:        func() error { return nil },
		}, nil
	}

	db, err := database.Open(ctx, database.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &backend{
		tx:           repository.NewTxManager(db),
		trips:        repository.NewTripRepo(db),
		reservations: repository.NewReservationRepo(db),
		routes:       repository.NewRouteRepo(db),
		buses:        repository.NewBusRepo(db),
		ping:         pinger(db),
		close:        db.Close,
	}, nil
}

func pinger(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}
