package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"chroma-clash/internal/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	dir := flag.String("dir", "db/migrations", "migrations directory")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("could not load .env: %v", err)
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+*dir, dsn)
	if err != nil {
		log.Fatalf("migrate setup: %v", err)
	}
	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("schema already up to date")
	case err != nil:
		log.Fatalf("migrate up: %v", err)
	default:
		log.Println("schema migrated")
	}
}
