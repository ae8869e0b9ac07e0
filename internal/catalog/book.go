// Package catalog implements the per-site book catalog: the Book/Loan
// domain model and the three mutation operations (PRESTAMO, DEVOLUCION,
// RENOVACION) defined in spec.md §4.4.1.
//
// This package is deliberately dependency-free, same as the teacher's
// internal/store package keeps its core map-mutation logic free of
// third-party imports — persistence, HTTP, and concurrency all live in
// other packages and call into a *Catalog directly.
package catalog

import (
	"encoding/json"
	"errors"
	"time"
)

const dateLayout = "2006-01-02"

const (
	loanPeriod     = 14 * 24 * time.Hour
	renewalPeriod  = 7 * 24 * time.Hour
	maxRenewals    = 2
)

// Loan is an active borrow of one Book by one user (spec.md §3).
type Loan struct {
	UserID        string    `json:"usuario_id"`
	LoanDate      string    `json:"fecha_prestamo"`
	DueDate       string    `json:"fecha_entrega"`
	RenewalCount  int       `json:"renovaciones"`
}

// Book is one catalog entry. Loans is keyed by UserID so that at most
// one Loan per (book, user) can exist (invariant P4) and lookup is O(1)
// instead of a linear scan over the loans.
type Book struct {
	Code             string          `json:"codigo"`
	Title            string          `json:"titulo"`
	Author           string          `json:"autor"`
	TotalCopies      int             `json:"ejemplares_totales"`
	AvailableCopies  int             `json:"ejemplares_disponibles"`
	Loans            map[string]*Loan `json:"-"`
}

// bookWire is the JSON shape from spec.md §6 ("Book is {codigo, titulo,
// autor, ejemplares_totales, ejemplares_disponibles, prestamos:[Loan]}").
type bookWire struct {
	Code            string  `json:"codigo"`
	Title           string  `json:"titulo"`
	Author          string  `json:"autor"`
	TotalCopies     int     `json:"ejemplares_totales"`
	AvailableCopies int     `json:"ejemplares_disponibles"`
	Loans           []*Loan `json:"prestamos"`
}

// MarshalJSON flattens the Loans map into the wire array shape.
func (b *Book) MarshalJSON() ([]byte, error) {
	w := bookWire{
		Code:            b.Code,
		Title:           b.Title,
		Author:          b.Author,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		Loans:           make([]*Loan, 0, len(b.Loans)),
	}
	for _, l := range b.Loans {
		w.Loans = append(w.Loans, l)
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the Loans map from the wire array shape.
func (b *Book) UnmarshalJSON(data []byte) error {
	var w bookWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Code = w.Code
	b.Title = w.Title
	b.Author = w.Author
	b.TotalCopies = w.TotalCopies
	b.AvailableCopies = w.AvailableCopies
	b.Loans = make(map[string]*Loan, len(w.Loans))
	for _, l := range w.Loans {
		b.Loans[l.UserID] = l
	}
	return nil
}

// Domain errors, surfaced verbatim as Reply.Reason by the caller.
var (
	ErrLibroNoExiste   = errors.New("LIBRO_NO_EXISTE")
	ErrSinEjemplares   = errors.New("SIN_EJEMPLARES")
	ErrYaTienePrestamo = errors.New("YA_TIENE_PRESTAMO")
	ErrNoTienePrestamo = errors.New("NO_TIENE_PRESTAMO")
	ErrMaxRenovaciones = errors.New("MAX_RENOVACIONES")
)

// parseDate parses a YYYY-MM-DD calendar date; no timezone, per spec.md
// §4.4.1 ("Date arithmetic uses calendar days on ISO dates; no timezone.").
func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// Prestamo applies the PRESTAMO operation to b under the caller's
// serialization (the Engine's owner goroutine). Returns the new due
// date string on success.
func (b *Book) Prestamo(userID, asOfDate string) (dueDate string, err error) {
	if b.AvailableCopies == 0 {
		return "", ErrSinEjemplares
	}
	if _, exists := b.Loans[userID]; exists {
		return "", ErrYaTienePrestamo
	}
	asOf, err := parseDate(asOfDate)
	if err != nil {
		return "", err
	}
	due := formatDate(asOf.Add(loanPeriod))
	if b.Loans == nil {
		b.Loans = make(map[string]*Loan)
	}
	b.Loans[userID] = &Loan{
		UserID:       userID,
		LoanDate:     asOfDate,
		DueDate:      due,
		RenewalCount: 0,
	}
	b.AvailableCopies--
	return due, nil
}

// Devolucion applies the DEVOLUCION operation to b.
func (b *Book) Devolucion(userID string) error {
	if _, exists := b.Loans[userID]; !exists {
		return ErrNoTienePrestamo
	}
	delete(b.Loans, userID)
	b.AvailableCopies++
	return nil
}

// Renovacion applies the RENOVACION operation to b. Returns the loan's
// new renewal count on success.
func (b *Book) Renovacion(userID, asOfDate string) (renewals int, err error) {
	loan, exists := b.Loans[userID]
	if !exists {
		return 0, ErrNoTienePrestamo
	}
	if loan.RenewalCount >= maxRenewals {
		return loan.RenewalCount, ErrMaxRenovaciones
	}
	asOf, err := parseDate(asOfDate)
	if err != nil {
		return loan.RenewalCount, err
	}
	loan.DueDate = formatDate(asOf.Add(renewalPeriod))
	loan.RenewalCount++
	return loan.RenewalCount, nil
}

// invariant helper, exercised by tests (P1): availableCopies + |loans| == totalCopies.
func (b *Book) copiesBalance() bool {
	return b.AvailableCopies+len(b.Loans) == b.TotalCopies
}
