// cmd/site is the entrypoint for one deployed site: it runs the Load
// Gateway, Loan Actor, both Event Actors, and the Storage Engine for
// that site as goroutines in a single process, communicating over
// channels — the re-shaping SPEC_FULL.md §0 describes in place of the
// original ZeroMQ transport. Only two boundaries in this process ever
// go over the network: the gateway's CP-facing HTTP server, and the
// engine's peer-facing HTTP server.
//
// Configuration, logging, and shutdown are grounded on the teacher's
// cmd/server/main.go: a -config flag naming the site's YAML file
// (no other flags), structured startup logging, background tickers, signal-driven graceful
// shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"library-network/internal/actor"
	"library-network/internal/config"
	"library-network/internal/engine"
	"library-network/internal/gateway"
	"library-network/internal/outbox"
	"library-network/internal/peerclient"
	"library-network/internal/persistence"
	"library-network/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to the site YAML configuration")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	entry := logrus.NewEntry(log)

	if *configPath == "" {
		entry.Fatal("missing required -config flag")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		entry.WithError(err).Fatal("load config")
	}
	siteLog := entry.WithField("site", cfg.Topology.Local.ID)

	// ── Persistence ──────────────────────────────────────────────────
	store, err := persistence.New(cfg.DataDir, siteLog)
	if err != nil {
		siteLog.WithError(err).Fatal("open persistence store")
	}
	seed, bootstrapped, err := store.Load()
	if err != nil {
		siteLog.WithError(err).Fatal("load catalog snapshot")
	}
	if bootstrapped {
		siteLog.Warn("no snapshot found on disk; started from bootstrap catalog")
	}

	// ── Engine ───────────────────────────────────────────────────────
	peer := peerclient.New(cfg.Topology.Peer.EngineAddr)
	eng := engine.New(cfg.Topology.Local.ID, seed, store, peer, cfg.HeartbeatPeriod, cfg.LivenessTimeout, siteLog)

	// ── Outboxes + Event Actors ──────────────────────────────────────
	devolucionBox, devolucionPending, err := outbox.Open(filepath.Join(cfg.DataDir, "devolucion.outbox"))
	if err != nil {
		siteLog.WithError(err).Fatal("open devolucion outbox")
	}
	renovacionBox, renovacionPending, err := outbox.Open(filepath.Join(cfg.DataDir, "renovacion.outbox"))
	if err != nil {
		siteLog.WithError(err).Fatal("open renovacion outbox")
	}

	devolucionActor := actor.NewEventActor(wire.OpDevolucion, devolucionBox, devolucionPending, eng, cfg.RetrySleep, cfg.ClientTimeout, siteLog)
	renovacionActor := actor.NewEventActor(wire.OpRenovacion, renovacionBox, renovacionPending, eng, cfg.RetrySleep, cfg.ClientTimeout, siteLog)

	// ── Loan Actor + Gateway ─────────────────────────────────────────
	loanActor := actor.NewLoanActor(eng, peer, cfg.ClientTimeout, siteLog)
	gw := gateway.New(
		cfg.Topology.Local.ID,
		eng,
		loanActor,
		map[wire.Operation]*outbox.Outbox{wire.OpDevolucion: devolucionBox, wire.OpRenovacion: renovacionBox},
		map[wire.Operation]*actor.EventActor{wire.OpDevolucion: devolucionActor, wire.OpRenovacion: renovacionActor},
		cfg.ClientTimeout,
		siteLog,
	)

	// ── HTTP servers ─────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)

	cpRouter := gin.New()
	cpRouter.Use(ginLogger(siteLog), ginRecovery(siteLog))
	gw.Register(cpRouter)
	cpServer := &http.Server{Addr: cfg.Topology.Local.GatewayAddr, Handler: cpRouter, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}

	peerRouter := gin.New()
	peerRouter.Use(ginLogger(siteLog), ginRecovery(siteLog))
	engine.NewServer(eng).Register(peerRouter)
	engineServer := &http.Server{Addr: cfg.Topology.Local.EngineAddr, Handler: peerRouter, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go eng.Run(ctx)
	go devolucionActor.Run(ctx)
	go renovacionActor.Run(ctx)

	go func() {
		siteLog.WithField("addr", cpServer.Addr).Info("load gateway listening")
		if err := cpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			siteLog.WithError(err).Fatal("gateway server error")
		}
	}()
	go func() {
		siteLog.WithField("addr", engineServer.Addr).Info("storage engine peer endpoint listening")
		if err := engineServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			siteLog.WithError(err).Fatal("engine server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	siteLog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := cpServer.Shutdown(shutdownCtx); err != nil {
		siteLog.WithError(err).Warn("gateway shutdown error")
	}
	if err := engineServer.Shutdown(shutdownCtx); err != nil {
		siteLog.WithError(err).Warn("engine server shutdown error")
	}

	// Final synchronous snapshot, mirroring the teacher's "snapshot
	// before exit" shutdown step.
	if snap, err := eng.Snapshot(context.Background()); err == nil {
		if err := store.WritePrimary(snap); err != nil {
			siteLog.WithError(err).Warn("final snapshot write failed")
		}
	}
}

func ginLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"latency":  time.Since(start),
			"clientIP": c.ClientIP(),
		}).Info("request handled")
	}
}

func ginRecovery(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
