// Command server wires storage, the workflow engine, the broadcast hub, and
// the HTTP/websocket surface into one process. Business logic lives in the
// internal packages; main only assembles and supervises.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"cratekeeper/internal/audit"
	auditstore "cratekeeper/internal/audit/store"
	"cratekeeper/internal/events"
	httpapi "cratekeeper/internal/http"
	"cratekeeper/internal/hub"
	hubmetrics "cratekeeper/internal/hub/metrics"
	"cratekeeper/internal/jwtauth"
	"cratekeeper/internal/platform/config"
	"cratekeeper/internal/platform/httpserver"
	"cratekeeper/internal/platform/logger"
	"cratekeeper/internal/platform/metrics"
	platformredis "cratekeeper/internal/platform/redis"
	"cratekeeper/internal/session"
	"cratekeeper/internal/session/revocation"
	"cratekeeper/internal/signature"
	wfhandler "cratekeeper/internal/workflow/handler"
	wfmetrics "cratekeeper/internal/workflow/metrics"
	"cratekeeper/internal/workflow/service"
	"cratekeeper/internal/workflow/store"
	"cratekeeper/internal/ws"
	id "cratekeeper/pkg/domain"
	"cratekeeper/pkg/platform/tx"
)

const auditMirrorBuffer = 256

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}

	// Single-instance deployments run without Redis; revocation then lives in
	// process memory.
	var revocationList revocation.List
	if redisClient != nil {
		defer redisClient.Close()
		revocationList = revocation.NewRedisList(redisClient.Client)
		log.Info("session revocation backed by redis")
	} else {
		revocationList = revocation.NewMemoryList()
		log.Warn("redis not configured, session revocation is in-memory only")
	}

	var centralUnit id.UnitID
	if cfg.CentralUnitID != "" {
		centralUnit, err = id.ParseUnitID(cfg.CentralUnitID)
		if err != nil {
			return err
		}
	}

	auditRecords := auditstore.NewPostgres(db)
	var mirror chan audit.Record
	var mirrorSink *auditstore.Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		mirrorSink, err = auditstore.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return err
		}
		defer mirrorSink.Close()
		mirror = make(chan audit.Record, auditMirrorBuffer)
		log.Info("audit mirror enabled", "topic", cfg.Kafka.AuditTopic)
	}
	auditPublisher := audit.NewPublisher(auditRecords, mirror, log)

	broadcast := hub.New(hub.Options{
		ReplayDepth:  cfg.Hub.ReplayDepth,
		ReplayWindow: cfg.Hub.ReplayWindow,
	}, hubmetrics.New())

	workflow := service.New(service.Deps{
		Requests:  store.NewPostgresRequestStore(db),
		Crates:    store.NewPostgresCrateStore(db),
		SendBacks: store.NewPostgresSendBackStore(db),
		Runner:    tx.NewSQLRunner(db),
		Verifier:  signature.NewBcryptVerifier(signature.NewPostgresCredentialStore(db)),
		Audit:     auditPublisher,
		Emitter:   events.NewEmitter(centralUnit),
		Publisher: broadcast,
		Metrics:   wfmetrics.New(),
		Logger:    log,
	})

	tokens := jwtauth.NewService(cfg.JWTSigningKey, cfg.JWTIssuer)
	validator := jwtauth.NewMiddlewareAdapter(tokens)

	router := httpapi.New(httpapi.Deps{
		Workflow:  wfhandler.New(workflow, log),
		Sessions:  session.NewHandler(revocationList, cfg.TokenTTL, log),
		WS:        ws.NewServer(broadcast, validator, revocationList, cfg.WS, log),
		Validator: validator,
		Revoked:   revocationList,
		Metrics:   metrics.New(),
		Logger:    log,
	})

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if mirror != nil {
		worker := audit.NewWorker(mirrorSink, mirror, log)
		group.Go(func() error {
			if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
