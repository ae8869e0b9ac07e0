package engine

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"library-network/internal/catalog"
	"library-network/internal/wire"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Engine, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng, cancel := newTestEngine(t)
	r := gin.New()
	NewServer(eng).Register(r)
	return r, eng, cancel
}

func TestHeartbeatEndpoint(t *testing.T) {
	r, eng, cancel := newTestRouter(t)
	defer cancel()

	req := httptest.NewRequest("GET", "/heartbeat", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	var hb wire.Heartbeat
	if err := json.Unmarshal(w.Body.Bytes(), &hb); err != nil {
		t.Fatal(err)
	}
	if hb.Site != 1 || hb.Status != "ALIVE" {
		t.Fatalf("unexpected heartbeat: %+v", hb)
	}
	_ = eng
}

func TestCatalogSnapshotEndpoint(t *testing.T) {
	r, _, cancel := newTestRouter(t)
	defer cancel()

	req := httptest.NewRequest("GET", "/catalog", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	var snap catalog.Catalog
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if _, ok := snap.Books["L0001"]; !ok {
		t.Fatal("expected seeded book L0001 in catalog snapshot")
	}
}

func TestRequestEndpointAppliesLoan(t *testing.T) {
	r, _, cancel := newTestRouter(t)
	defer cancel()

	body, _ := json.Marshal(wire.Request{
		Operation: wire.OpPrestamo,
		Payload:   wire.Payload{BookCode: "L0001", UserID: "U0001", AsOfDate: "2025-11-20"},
	})
	req := httptest.NewRequest("POST", "/request", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var reply wire.Reply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatal(err)
	}
	if !reply.OK || reply.DueDate != "2025-12-04" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestRequestEndpointRejectsDoubleLoan(t *testing.T) {
	r, _, cancel := newTestRouter(t)
	defer cancel()

	body, _ := json.Marshal(wire.Request{
		Operation: wire.OpPrestamo,
		Payload:   wire.Payload{BookCode: "L0001", UserID: "U0001", AsOfDate: "2025-11-20"},
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/request", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		var reply wire.Reply
		json.Unmarshal(w.Body.Bytes(), &reply)
		if i == 0 && !reply.OK {
			t.Fatalf("first loan should succeed, got %+v", reply)
		}
		if i == 1 {
			if reply.OK || reply.Reason != wire.ReasonYaTienePrestamo {
				t.Fatalf("second loan should reject with YA_TIENE_PRESTAMO, got %+v", reply)
			}
		}
	}
}
