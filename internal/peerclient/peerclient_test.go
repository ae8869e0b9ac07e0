package peerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"library-network/internal/catalog"
	"library-network/internal/wire"
)

func TestSubmitLoanRoundTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/request" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req wire.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(wire.Reply{OK: true, DueDate: "2025-12-04"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	reply, err := c.SubmitLoan(context.Background(), wire.Request{Operation: wire.OpPrestamo, Payload: wire.Payload{BookCode: "L0001", UserID: "U0001", AsOfDate: "2025-11-20"}})
	if err != nil {
		t.Fatal(err)
	}
	if !reply.OK || reply.DueDate != "2025-12-04" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestPollHeartbeatDecodesFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wire.Heartbeat{Site: 2, Version: 7, Status: "ALIVE"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	hb, err := c.PollHeartbeat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if hb.Site != 2 || hb.Version != 7 {
		t.Fatalf("unexpected heartbeat: %+v", hb)
	}
}

func TestFetchCatalogDecodesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cat := catalog.New()
		cat.Version = 3
		cat.Books["L0002"] = &catalog.Book{Code: "L0002", TotalCopies: 1, AvailableCopies: 1, Loans: map[string]*catalog.Loan{}}
		json.NewEncoder(w).Encode(cat)
	}))
	defer srv.Close()

	c := New(srv.URL)
	cat, err := c.FetchCatalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cat.Version != 3 {
		t.Fatalf("version = %d, want 3", cat.Version)
	}
	if _, ok := cat.Books["L0002"]; !ok {
		t.Fatal("expected L0002 in fetched catalog")
	}
}

func TestDoJSONReturnsAPIErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.PollHeartbeat(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", apiErr.Status)
	}
}

func TestSubmitLoanFailsFastAgainstUnreachablePeer(t *testing.T) {
	c := New("http://127.0.0.1:1")
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()
	_, err := c.SubmitLoan(ctx, wire.Request{Operation: wire.OpPrestamo})
	if err == nil {
		t.Fatal("expected a transport error against an unreachable peer")
	}
}
