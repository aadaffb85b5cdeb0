package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/driftkv/internal/config"
	"github.com/danmuck/driftkv/internal/logging"
	"github.com/danmuck/driftkv/internal/observability"
	"github.com/danmuck/driftkv/internal/sim"
)

var startedAt = time.Now()

func main() {
	configPath := flag.String("config", "", "path to driftsim TOML config")
	listenAddr := flag.String("listen", "", "protocol listen address (overrides config)")
	adminAddr := flag.String("admin", "", "admin HTTP listen address (overrides config)")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.RegisterMetrics()

	cfg := config.SimConfig{ListenAddr: ":7878", AdminAddr: ":7879"}
	if *configPath != "" {
		loaded, err := config.LoadSimConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}

	server := sim.NewServer()
	boundAddr, err := server.Start(cfg.ListenAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.ListenAddr).Msg("start protocol listener")
	}
	log.Info().Str("addr", boundAddr).Msg("driftsim serving protocol")

	go serveAdmin(cfg)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("driftsim shutting down")
	server.Close()
}

func serveAdmin(cfg config.SimConfig) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if len(cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(startedAt).String(),
			"service": "driftsim",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("addr", cfg.AdminAddr).Msg("driftsim serving admin")
	if err := r.Run(cfg.AdminAddr); err != nil {
		log.Error().Err(err).Msg("admin server stopped")
	}
}
