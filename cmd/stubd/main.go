package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/kmorozov/subctl/internal/config"
	"github.com/kmorozov/subctl/internal/stubserver"
	"github.com/kmorozov/subctl/pkg/logging"
	loggingmw "github.com/kmorozov/subctl/pkg/middleware/logging"
)

func main() {
	cfg := config.LoadStub()
	logger := logging.New(os.Stdout, cfg.LogLevel)

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	srv, err := stubserver.New(db, cfg.JWTSecret, cfg.RefreshSecret, cfg.UploadDir, logger)
	if err != nil {
		log.Fatalf("stub server init error: %v", err)
	}
	if err := stubserver.SeedPlans(db); err != nil {
		log.Fatalf("seed plans error: %v", err)
	}
	if err := seedUser(srv); err != nil {
		log.Fatalf("seed user error: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(loggingmw.RequestLogger(logger))
	srv.Register(e)

	go func() {
		if err := e.Start(cfg.Addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()
	logger.Info("stubd listening", "addr", cfg.Addr, "db", cfg.DBPath)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
}

// seedUser creates the demo account unless it already exists.
func seedUser(srv *stubserver.Server) error {
	username := config.EnvDefault("STUBD_SEED_USER", "demo")
	password := config.EnvDefault("STUBD_SEED_PASSWORD", "demo")

	var existing stubserver.User
	err := srv.DB.First(&existing, "username = ?", username).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	_, err = srv.CreateUser(username, password, username+"@example.com")
	return err
}
