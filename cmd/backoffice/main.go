package main

import (
	"context"
	"log"
	"net/http"

	"github.com/enermarket/backoffice/internal/api"
	"github.com/enermarket/backoffice/internal/config"
	"github.com/enermarket/backoffice/internal/cron"
	"github.com/enermarket/backoffice/internal/migrate"
)

func main() {
	cfg := config.FromEnv()

	switch cfg.Mode {
	case "migrate":
		if err := migrate.Up(context.Background(), cfg.DBDriver, cfg.DBDSN); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		log.Printf("migrations applied")
		return
	case "cron":
		if err := cron.Run(context.Background(), cfg); err != nil {
			log.Fatalf("cron worker failed: %v", err)
		}
		return
	}

	mux, err := api.NewMux(cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	addr := ":" + cfg.Port
	log.Printf("backoffice listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
