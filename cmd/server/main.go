package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"clinic-queue/internal/config"
	"clinic-queue/internal/eventlog"
	"clinic-queue/internal/helper"
	"clinic-queue/internal/http/handler"
	"clinic-queue/internal/queue"
	"clinic-queue/internal/roster"
	"clinic-queue/internal/telemetry"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	config.LoadEnv()
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, "clinic-queue-server", cfg.OTelEndpoint, cfg.OTelInsecure)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("[telemetry] shutdown: %v", err)
		}
	}()

	st, err := config.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	events := eventlog.Nop()
	var reports handler.Reports
	if cfg.MySQLDSN != "" {
		db, err := config.OpenDB(ctx, cfg.MySQLDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		mysqlLog := eventlog.NewMySQL(db)
		if err := mysqlLog.Migrate(ctx); err != nil {
			log.Fatal(err)
		}
		events = mysqlLog
		reports = mysqlLog
	}

	pin, err := config.NewPINChecker(cfg.StaffPIN, cfg.StaffPINHash)
	if err != nil {
		log.Fatal(err)
	}

	loc := cfg.Location()
	queueService := queue.NewService(st, queue.Options{
		AverageServiceTime: cfg.AverageServiceTime,
		Learned:            cfg.LearnedServiceTime,
		Events:             events,
		IsOpen:             helper.OpenHours(cfg.ClinicOpen, cfg.ClinicClose, loc),
	})
	rosterService := roster.NewService(st, roster.Options{
		AverageServiceTime: cfg.AverageServiceTime,
		Events:             events,
	})

	h := handler.New(handler.Options{
		Queue:    queueService,
		Roster:   rosterService,
		Reports:  reports,
		PIN:      pin,
		Secret:   cfg.JWTSecret,
		NearTurn: cfg.NearTurnThreshold,
		Location: loc,
	})

	changes, err := st.Watch(ctx, "")
	if err != nil {
		log.Fatal(err)
	}
	go h.Hub().Run(ctx, changes)
	go h.TrackConnectivity(st.Connectivity(ctx))

	app := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE",
	}))

	h.Register(app)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	addr := cfg.Addr()
	log.Println("Server running on", addr)
	if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
