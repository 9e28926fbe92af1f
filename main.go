package main

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

	intconfig "carpool/internal/config"
	intdb "carpool/internal/db"
	"carpool/internal/events"
	router "carpool/internal/http"
	h "carpool/internal/http/handlers"
	"carpool/internal/repositories"
	"carpool/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	env := intconfig.LoadEnv()
	if err := env.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	matching, err := intconfig.LoadMatchingConfig(env.MatchingConfigPath)
	if err != nil {
		log.Fatalf("load matching config: %v", err)
	}

	var (
		trips    repositories.TripStore
		bookings repositories.BookingStore
		db       *sql.DB
	)
	if env.DBDSN != "" {
		db, err = intconfig.ConnectDB(ctx, env.DBDSN)
		if err != nil {
			log.Fatalf("connect db: %v", err)
		}
		defer db.Close()
		if err := intdb.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		trips = repositories.TripRepository{DB: db}
		bookings = repositories.BookingRepository{DB: db}
	} else {
		log.Println("[CONFIG] action=storage msg=DB_DSN not set, using in-memory stores")
		trips = repositories.NewMemoryTripStore()
		bookings = repositories.NewMemoryBookingStore()
	}

	bus := events.NewBus()
	stats := services.NewStatsService(services.NewRatingAggregator(), services.NewEarningsAggregator())
	stats.Subscribe(bus)

	if env.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(ctx, env.AMQPURL, env.AMQPExchange)
		if err != nil {
			log.Fatalf("connect amqp: %v", err)
		}
		defer pub.Close()
		bus.Subscribe("amqp", pub.Handle)
	}

	inv := services.NewTripInventory(trips, env.ReserveMaxAttempts)
	ledger := services.NewBookingLedger(inv, bookings, bus, services.LedgerConfig{
		HoldDuration:       env.HoldDuration,
		CancellationWindow: env.CancellationWindow,
		LateRefundPercent:  env.LateRefundPercent,
	})
	if db != nil {
		ledger.SeatBooker = repositories.ReservationRepository{DB: db}
	}

	api := &h.API{
		Inventory: inv,
		Ledger:    ledger,
		Matching:  services.NewMatchingEngine(inv, matching),
		Stats:     stats,
		Receipts:  services.ReceiptService{Ledger: ledger},
	}
	if db != nil {
		api.CheckStorage = func(ctx context.Context) error { return intconfig.CheckDB(ctx, db) }
	}

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           router.NewRouter(env, api),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	sweeper := &services.ExpirySweeper{Ledger: ledger, Interval: env.SweepInterval}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server listening on http://localhost%s", env.AppAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
	log.Println("Server stopped cleanly.")
}
