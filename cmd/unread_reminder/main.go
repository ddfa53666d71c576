package main

import (
	"flag"
	"time"

	"github.com/golang/glog"

	"projx.dev/social/config"
	"projx.dev/social/database"
	"projx.dev/social/handlers"
	"projx.dev/social/services"
)

func main() {
	minAge := flag.Duration("min-age", 6*time.Hour, "only remind about notifications older than this")
	flag.Parse()
	defer glog.Flush()

	config.LoadEnv()
	cfg, err := config.LoadServer()
	if err != nil {
		glog.Fatalf("UnreadReminder: %v", err)
	}
	if cfg.FirebaseCredentialsPath == "" {
		glog.Fatal("FIREBASE_CREDENTIALS_PATH not set")
	}
	if err := services.InitFirebase(cfg.FirebaseCredentialsPath); err != nil {
		glog.Fatalf("UnreadReminder: Firebase init failed: %v", err)
	}

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		glog.Fatalf("UnreadReminder: DB connection failed: %v", err)
	}
	defer db.Close()

	glog.Infof("Running unread reminder job")
	if _, err := handlers.SendUnreadReminderNotifications(db, *minAge); err != nil {
		glog.Errorf("UnreadReminder: %v", err)
	}
	glog.Infof("Unread reminder job finished")
}
