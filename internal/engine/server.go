package engine

import (
	"net/http"

	"library-network/internal/catalog"
	"library-network/internal/wire"

	"github.com/gin-gonic/gin"
)

// Server exposes the Storage Engine's peer-facing HTTP API: the
// heartbeat a peer polls, the bulk catalog transfer used for catch-up,
// and the /request endpoint a peer site's Loan Actor calls during
// failover. Grounded on the teacher's internal/api.Handler.Register,
// narrowed to the three endpoints this spec actually needs between
// engines (spec.md §4.3, §4.5).
type Server struct {
	engine *Engine
}

// NewServer returns a Server wrapping engine.
func NewServer(e *Engine) *Server {
	return &Server{engine: e}
}

// Register mounts the engine's routes on r.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/heartbeat", s.heartbeat)
	r.GET("/catalog", s.catalogSnapshot)
	r.POST("/request", s.request)
}

func (s *Server) heartbeat(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Heartbeat())
}

func (s *Server) catalogSnapshot(c *gin.Context) {
	snap, err := s.engine.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// request serves a peer site's Loan Actor during failover: the same
// Apply path the local actor uses, reached here over HTTP because the
// peer's actor lives in a different process (spec.md §4.3 step 2).
func (s *Server) request(c *gin.Context) {
	var req wire.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, wire.Reply{OK: false, Reason: wire.ReasonUnknownOp, Message: err.Error()})
		return
	}

	res, version, err := s.engine.Apply(c.Request.Context(), catalog.Operation(req.Operation), req.Payload.BookCode, req.Payload.UserID, req.Payload.AsOfDate)
	if err != nil {
		c.JSON(http.StatusOK, wire.Reply{OK: false, Reason: reasonFor(err), Version: version})
		return
	}
	c.JSON(http.StatusOK, wire.Reply{
		OK:       true,
		DueDate:  res.DueDate,
		Renewals: res.Renewals,
		Version:  version,
	})
}

// reasonFor maps a catalog-level error to the wire reason code a
// client expects (spec.md §7).
func reasonFor(err error) string {
	switch err {
	case catalog.ErrLibroNoExiste:
		return wire.ReasonLibroNoExiste
	case catalog.ErrSinEjemplares:
		return wire.ReasonSinEjemplares
	case catalog.ErrYaTienePrestamo:
		return wire.ReasonYaTienePrestamo
	case catalog.ErrNoTienePrestamo:
		return wire.ReasonNoTienePrestamo
	case catalog.ErrMaxRenovaciones:
		return wire.ReasonMaxRenovaciones
	case catalog.ErrUnknownOp:
		return wire.ReasonUnknownOp
	default:
		return wire.ReasonStorageUnavailable
	}
}
