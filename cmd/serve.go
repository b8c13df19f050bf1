package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-locks/app/controller"
	grpcserver "github.com/vibast-solutions/ms-go-locks/app/grpc"
	"github.com/vibast-solutions/ms-go-locks/app/logging"
	"github.com/vibast-solutions/ms-go-locks/app/service"
	"github.com/vibast-solutions/ms-go-locks/config"
	"google.golang.org/grpc"
)

const healthCheckInterval = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the HTTP (Echo) lock API and the gRPC health server.",
	Run:   runServe,
}

// init registers the serve command.
func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires dependencies and starts HTTP and gRPC servers.
func runServe(_ *cobra.Command, _ []string) {
	cfg, logger := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise lock store")
	}
	defer app.Close()

	lockService := service.NewLockService(app.locker, logger)
	lockController := controller.NewLockController(lockService)
	devController := controller.NewDevController(app.store)
	health := grpcserver.NewHealthReporter(app.store, logger)

	e := setupHTTPServer(ctx, logger, lockController, devController)
	grpcServer, lis := setupGRPCServer(cfg, logger, health)

	go health.Run(ctx, healthCheckInterval)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
		logger.Infof("Starting HTTP server on %s", httpAddr)
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logger.Infof("Starting gRPC server on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			logger.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")
	cancel()

	// cancel() ended every request context, so in-flight holds stop and
	// release their leases while Shutdown waits for them
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown error")
	}
	grpcServer.GracefulStop()

	logger.Info("Server stopped")
}

// setupHTTPServer configures the Echo HTTP server and routes. Request
// contexts derive from ctx, so cancelling it interrupts in-flight holds.
func setupHTTPServer(ctx context.Context, logger logrus.FieldLogger, lockController *controller.LockController, devController *controller.DevController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.BaseContext = func(net.Listener) context.Context { return ctx }

	e.Use(echomiddleware.RequestID())
	e.Use(logging.AccessLog(logger))
	e.Use(echomiddleware.Recover())

	locks := e.Group("/locks")
	locks.POST("/hold", lockController.Hold)

	e.GET("/ping", devController.Ping)
	e.GET("/delay", devController.Delay)
	e.GET("/forbidden", devController.Forbidden)
	e.GET("/error", devController.Error)
	e.GET("/health", devController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

// setupGRPCServer builds the gRPC server and listener.
func setupGRPCServer(cfg *config.Config, logger logrus.FieldLogger, health *grpcserver.HealthReporter) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPCHost, cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	return grpcServer, lis
}
