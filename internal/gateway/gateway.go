// Package gateway is the Load Gateway: the Client Producer-facing HTTP
// front door for one site. It classifies each request as synchronous
// (PRESTAMO, routed through the Loan Actor) or asynchronous
// (DEVOLUCION/RENOVACION, acknowledged immediately and handed to an
// Event Actor via the outbox), and annotates loan requests with the
// useBackup hint derived from the local engine's liveness.
//
// Grounded on the teacher's internal/api.Handler + middleware.go for
// the Gin wiring and logging/recovery shape.
package gateway

import (
	"context"
	"net/http"
	"time"

	"library-network/internal/actor"
	"library-network/internal/engine"
	"library-network/internal/outbox"
	"library-network/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Gateway is the Client Producer-facing HTTP handler set for one site.
type Gateway struct {
	siteID  int
	local   *engine.Engine
	loan    *actor.LoanActor
	outbox  map[wire.Operation]*outbox.Outbox
	actors  map[wire.Operation]*actor.EventActor
	timeout time.Duration
	log     *logrus.Entry
}

// New returns a Gateway wired to this site's engine, Loan Actor, and
// the per-topic outbox/Event Actor pairs for DEVOLUCION and RENOVACION.
func New(siteID int, local *engine.Engine, loan *actor.LoanActor, boxes map[wire.Operation]*outbox.Outbox, actors map[wire.Operation]*actor.EventActor, clientTimeout time.Duration, log *logrus.Entry) *Gateway {
	return &Gateway{
		siteID:  siteID,
		local:   local,
		loan:    loan,
		outbox:  boxes,
		actors:  actors,
		timeout: clientTimeout,
		log:     log,
	}
}

// Register mounts the gateway's CP-facing routes on r.
func (g *Gateway) Register(r *gin.Engine) {
	r.POST("/requests", g.handleRequest)
	r.GET("/health", g.health)
}

func (g *Gateway) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"site":      g.siteID,
		"version":   g.local.Version(),
		"localUp":   g.local.Healthy(),
		"peerAlive": g.local.PeerAlive(),
	})
}

// handleRequest is the CP's single entry point (spec.md §4.2).
func (g *Gateway) handleRequest(c *gin.Context) {
	var req wire.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, wire.Reply{OK: false, Reason: wire.ReasonUnknownOp, Message: err.Error()})
		return
	}

	switch req.Operation {
	case wire.OpPrestamo:
		g.handleLoan(c, req)
	case wire.OpDevolucion, wire.OpRenovacion:
		g.handleAsync(c, req)
	default:
		c.JSON(http.StatusOK, wire.Reply{OK: false, Reason: wire.ReasonUnknownOp})
	}
}

// handleLoan routes PRESTAMO synchronously through the Loan Actor,
// annotating useBackup from the local engine's observed liveness
// (spec.md §4.2's "LG does not perform failover itself; it only
// hints.").
func (g *Gateway) handleLoan(c *gin.Context, req wire.Request) {
	req.UseBackup = !g.local.Healthy()
	req.Site = g.siteID

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*g.timeout)
	defer cancel()

	reply, err := g.loan.HandleLoan(ctx, req)
	if err != nil {
		// The Loan Actor itself produced no reply at all — the LG<->LA
		// boundary this mirrors from the original transport is down.
		c.JSON(http.StatusOK, wire.Reply{OK: false, Reason: wire.ReasonActorUnreachable})
		return
	}
	c.JSON(http.StatusOK, reply)
}

// handleAsync implements spec.md §4.2's asynchronous path: durably
// enqueue the event before acknowledging the Client Producer (the
// outbox durability enhancement from SPEC_FULL.md §4), then hand it to
// the matching Event Actor and reply immediately.
func (g *Gateway) handleAsync(c *gin.Context, req wire.Request) {
	box, ok := g.outbox[req.Operation]
	if !ok {
		c.JSON(http.StatusOK, wire.Reply{OK: false, Reason: wire.ReasonUnknownOp})
		return
	}

	evt := wire.TopicEvent{Operation: req.Operation, Payload: req.Payload, Site: g.siteID}
	entry, err := box.Append(evt)
	if err != nil {
		g.log.WithError(err).Error("failed to persist outbox entry")
		c.JSON(http.StatusOK, wire.Reply{OK: false, Reason: wire.ReasonStorageUnavailable})
		return
	}

	g.actors[req.Operation].Publish(entry)

	c.JSON(http.StatusOK, wire.Reply{
		OK:      true,
		Type:    lowerOpName(req.Operation),
		Message: "queued",
	})
}

func lowerOpName(op wire.Operation) string {
	switch op {
	case wire.OpDevolucion:
		return "devolucion"
	case wire.OpRenovacion:
		return "renovacion"
	default:
		return string(op)
	}
}
