// Package actor implements the two actor tiers spec.md §4.3/§4.4
// distinguish by failure policy: the Loan Actor fails over to the
// peer immediately, the Event Actors retry the local engine forever.
//
// Grounded on the teacher's cluster.Replicator for the shape of a
// local-then-remote attempt with its own per-hop timeout, adapted from
// quorum fan-out to a single ordered failover attempt.
package actor

import (
	"context"
	"errors"
	"time"

	"library-network/internal/catalog"
	"library-network/internal/engine"
	"library-network/internal/peerclient"
	"library-network/internal/wire"

	"github.com/sirupsen/logrus"
)

// LoanActor executes PRESTAMO requests: local engine first, falling
// over to the peer engine on any transport-level failure or when the
// Load Gateway has already flagged the local engine dead.
type LoanActor struct {
	local   *engine.Engine
	peer    *peerclient.Client
	timeout time.Duration
	log     *logrus.Entry
}

// NewLoanActor returns a LoanActor bound to this site's engine and its
// peer client, with hopTimeout applied to each of the (up to) two
// attempts (spec.md §5: "LA->SE 3s").
func NewLoanActor(local *engine.Engine, peer *peerclient.Client, hopTimeout time.Duration, log *logrus.Entry) *LoanActor {
	return &LoanActor{local: local, peer: peer, timeout: hopTimeout, log: log}
}

// HandleLoan implements spec.md §4.3's two-step failover: attempt the
// local engine unless useBackup is already set, then the peer engine
// on any non-domain failure. Every outcome is returned as a reply,
// including OK=false for a domain rejection and STORAGE_UNAVAILABLE
// when neither engine answered; the returned error is always nil.
func (la *LoanActor) HandleLoan(ctx context.Context, req wire.Request) (wire.Reply, error) {
	if !req.UseBackup {
		reply, transportErr := la.attempt(ctx, la.localCall, req)
		if transportErr == nil {
			return reply, nil
		}
		la.log.WithError(transportErr).Warn("local storage engine unreachable, failing over to peer")
	}

	reply, transportErr := la.attempt(ctx, la.peerCall, req)
	if transportErr != nil {
		la.log.WithError(transportErr).Warn("peer storage engine unreachable")
		return wire.Reply{OK: false, Reason: wire.ReasonStorageUnavailable}, nil
	}
	return reply, nil
}

type hop func(ctx context.Context, req wire.Request) (wire.Reply, error)

// attempt runs hopFn under its own bounded timeout. The hop itself
// classifies the result: a domain rejection comes back as a valid
// reply, anything else as an error the caller should fail over from.
func (la *LoanActor) attempt(ctx context.Context, hopFn hop, req wire.Request) (wire.Reply, error) {
	hopCtx, cancel := context.WithTimeout(ctx, la.timeout)
	defer cancel()
	return hopFn(hopCtx, req)
}

func (la *LoanActor) localCall(ctx context.Context, req wire.Request) (wire.Reply, error) {
	res, version, err := la.local.Apply(ctx, catalog.Operation(req.Operation), req.Payload.BookCode, req.Payload.UserID, req.Payload.AsOfDate)
	if err == nil {
		return wire.Reply{OK: true, DueDate: res.DueDate, Renewals: res.Renewals, Version: version}, nil
	}
	if reason, ok := domainReason(err); ok {
		return wire.Reply{OK: false, Reason: reason, Version: version}, nil
	}
	return wire.Reply{}, err
}

func (la *LoanActor) peerCall(ctx context.Context, req wire.Request) (wire.Reply, error) {
	return la.peer.SubmitLoan(ctx, req)
}

// domainReason reports whether err is one of the catalog's deterministic
// rejections, and if so, the wire reason code to surface for it.
func domainReason(err error) (string, bool) {
	switch {
	case errors.Is(err, catalog.ErrLibroNoExiste):
		return wire.ReasonLibroNoExiste, true
	case errors.Is(err, catalog.ErrSinEjemplares):
		return wire.ReasonSinEjemplares, true
	case errors.Is(err, catalog.ErrYaTienePrestamo):
		return wire.ReasonYaTienePrestamo, true
	case errors.Is(err, catalog.ErrNoTienePrestamo):
		return wire.ReasonNoTienePrestamo, true
	case errors.Is(err, catalog.ErrMaxRenovaciones):
		return wire.ReasonMaxRenovaciones, true
	case errors.Is(err, catalog.ErrUnknownOp):
		return wire.ReasonUnknownOp, true
	default:
		return "", false
	}
}
