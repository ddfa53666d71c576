package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/golang/glog"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

func ConnectDB(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	glog.Infof("[db] connected")
	return db, nil
}

// Migrate creates any missing tables. Every statement is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	glog.Infof("[db] schema up to date")
	return nil
}
