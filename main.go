package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"SIMS-backend/internal/platform/auth"
	"SIMS-backend/internal/platform/db"
	"SIMS-backend/internal/platform/events"
	"SIMS-backend/internal/stock"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	mode := cfg.Server.Mode
	log.Info().Str("mode", mode).Msg("starting")
	if mode != "dev" && mode != "release" {
		log.Fatal().Str("mode", mode).Msg("server.mode must be dev or release")
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer conn.Close()
	log.Info().Str("db", cfg.DB.DBName).Msg("connected to DB")

	// Broker is optional; without one, events are dropped.
	var pub events.Publisher = events.Nop{}
	if cfg.Broker.URL != "" {
		amqpPub, err := events.NewAMQP(cfg.Broker.URL, cfg.Broker.Queue)
		if err != nil {
			log.Fatal().Err(err).Msg("connect broker")
		}
		defer amqpPub.Close()
		pub = amqpPub
		log.Info().Str("queue", cfg.Broker.Queue).Msg("connected to broker")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS is only needed while the frontend runs on its own port.
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	secret := []byte(cfg.Auth.JWTSecret)
	auth.RegisterRoutes(r.Group("/auth"), auth.NewService(conn, secret))

	svc := stock.NewService(stock.NewMySQLStore(conn), pub, log.Logger)
	api := r.Group("/api/v1")
	api.Use(auth.RequireAuth(secret))
	stock.RegisterRoutes(api, svc)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("shutdown")
	}
}
