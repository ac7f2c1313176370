package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/disq/internal/cache"
	"github.com/you/disq/internal/config"
	"github.com/you/disq/internal/domain"
	"github.com/you/disq/internal/gateway"
	"github.com/you/disq/internal/storage"
	"github.com/you/disq/internal/worker"
)

type request struct {
	Action   string `json:"action"`
	TenantID string `json:"tenant_id"`
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})

	queue := storage.NewQueue(db)
	lending := storage.NewLending(db)
	settings := cache.NewSettings(rdb, lending, cfg.SettingsCacheTTL, log)
	sms := gateway.NewSMS(cfg.SMSTimeout, log)

	registry := worker.NewRegistry()
	worker.Register(registry, domain.TypeDisbursementResult,
		worker.NewReconciler(lending, queue, log).Handle)
	worker.Register(registry, domain.TypeNotification,
		worker.NewNotifier(lending, settings, sms, log).Handle)

	w := worker.New(queue, registry, cfg.RetryBackoff, cfg.MaxDrainJobs, cfg.StuckThreshold, log)

	rtr := chi.NewRouter()

	rtr.Get("/healthz", func(wr http.ResponseWriter, rq *http.Request) {
		if err := db.Ping(rq.Context()); err != nil {
			writeJSON(wr, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(wr, http.StatusOK, map[string]string{"status": "ok"})
	})

	rtr.Post("/v1/queue", func(wr http.ResponseWriter, rq *http.Request) {
		var req request
		if err := json.NewDecoder(rq.Body).Decode(&req); err != nil {
			writeJSON(wr, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		switch req.Action {
		case "process-queue":
			sum, err := w.Drain(rq.Context(), req.TenantID)
			if err != nil {
				writeJSON(wr, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(wr, http.StatusOK, sum)
		case "recover-stuck":
			n, err := w.Recover(rq.Context())
			if err != nil {
				writeJSON(wr, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(wr, http.StatusOK, map[string]int{"recovered": n})
		default:
			writeJSON(wr, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("Unknown action: %s. Valid: process-queue, recover-stuck", req.Action),
			})
		}
	})

	log.Info("queue worker listening", zap.String("addr", cfg.APIAddr))
	if err := http.ListenAndServe(cfg.APIAddr, rtr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
