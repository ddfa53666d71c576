package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"projx.dev/social/config"
	"projx.dev/social/database"
	"projx.dev/social/handlers"
	"projx.dev/social/routes"
	"projx.dev/social/services"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	config.LoadEnv()
	cfg, err := config.LoadServer()
	if err != nil {
		glog.Fatalf("config: %v", err)
	}

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		glog.Fatalf("DB connection failed: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		glog.Fatalf("%v", err)
	}

	if err := services.InitFirebase(cfg.FirebaseCredentialsPath); err != nil {
		glog.Warningf("Firebase unavailable, continuing without push: %v", err)
	}

	store, err := services.NewMediaStore(cfg.MediaDir)
	if err != nil {
		glog.Fatalf("%v", err)
	}
	auth := services.NewAuth(cfg.JWTSecret, cfg.SessionKey, cfg.TokenTTL, cfg.CookieSecure)
	hub := handlers.NewHub(auth)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.NewRouter(db, auth, store, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		glog.Infof("Server listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	glog.Infof("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		glog.Errorf("shutdown: %v", err)
	}
	hub.Close()
}
