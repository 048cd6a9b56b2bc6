package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wa-platform/core/ui/rest/middleware"
	"github.com/wa-platform/core/ui/websocket"
)

// restCmd starts the HTTP surface: webhook ingester, external send API,
// and the operator dashboard's internal REST + realtime API (§6).
var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the webhook ingester and REST/realtime API",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: len(cfg.App.TrustedProxies) > 0,
		BodyLimit:               10 * 1024 * 1024,
		Network:                 "tcp",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}

	app := fiber.New(fiberConfig)

	app.Use(middleware.Recovery())
	if cfg.App.Debug {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.App.CorsAllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
	}))

	var apiGroup fiber.Router = app
	if cfg.App.BasePath != "" {
		apiGroup = app.Group(cfg.App.BasePath)
	}

	handlers.Register(apiGroup)
	websocket.RegisterRoutes(apiGroup, hub, handlers.JWTSecret)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] received termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.WithError(err).Error("[REST] error during fiber shutdown")
		}
		StopApp()
	}()

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.WithError(err).Fatal("[REST] failed to start")
	}
}
