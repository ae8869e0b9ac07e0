package catalog

import (
	"encoding/json"
	"errors"
)

// Catalog is the versioned set of Books owned by one site (spec.md §3).
// It has no internal locking — the Engine's single owner goroutine is
// the only caller permitted to mutate it, which is what lets every
// mutation below skip the explicit lock the teacher's store.Store takes
// (per SPEC_FULL.md §0's re-shaping of the concurrency model).
type Catalog struct {
	Version uint64           `json:"version"`
	Books   map[string]*Book `json:"libros"`
}

// New returns an empty catalog at version 0.
func New() *Catalog {
	return &Catalog{Books: make(map[string]*Book)}
}

// Clone deep-copies the catalog. The engine uses it for every copy it
// hands out of its owner goroutine (Snapshot, which also serves the
// catch-up transfer, and the backup write), so later mutations of the
// live catalog never reach the copy.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{Version: c.Version, Books: make(map[string]*Book, len(c.Books))}
	for code, b := range c.Books {
		nb := &Book{
			Code:            b.Code,
			Title:           b.Title,
			Author:          b.Author,
			TotalCopies:     b.TotalCopies,
			AvailableCopies: b.AvailableCopies,
			Loans:           make(map[string]*Loan, len(b.Loans)),
		}
		for uid, l := range b.Loans {
			loanCopy := *l
			nb.Loans[uid] = &loanCopy
		}
		out.Books[code] = nb
	}
	return out
}

// catalogWire mirrors spec.md §6's snapshot file shape:
// {version:int, libros:[Book...]}.
type catalogWire struct {
	Version uint64  `json:"version"`
	Books   []*Book `json:"libros"`
}

func (c *Catalog) MarshalJSON() ([]byte, error) {
	w := catalogWire{Version: c.Version, Books: make([]*Book, 0, len(c.Books))}
	for _, b := range c.Books {
		w.Books = append(w.Books, b)
	}
	return json.Marshal(w)
}

func (c *Catalog) UnmarshalJSON(data []byte) error {
	var w catalogWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Version = w.Version
	c.Books = make(map[string]*Book, len(w.Books))
	for _, b := range w.Books {
		c.Books[b.Code] = b
	}
	return nil
}

// Apply dispatches op against the book named by payload.BookCode,
// incrementing Version by exactly one on any accepted mutation
// (invariant P3). Reads (none exist at this granularity; every
// operation here is a mutation) never touch Version on rejection.
func (c *Catalog) Apply(op Operation, bookCode, userID, asOfDate string) (Result, error) {
	book, ok := c.Books[bookCode]
	if !ok {
		return Result{}, ErrLibroNoExiste
	}

	switch op {
	case OpPrestamo:
		due, err := book.Prestamo(userID, asOfDate)
		if err != nil {
			return Result{}, err
		}
		c.Version++
		return Result{DueDate: due}, nil

	case OpDevolucion:
		if err := book.Devolucion(userID); err != nil {
			return Result{}, err
		}
		c.Version++
		return Result{}, nil

	case OpRenovacion:
		renewals, err := book.Renovacion(userID, asOfDate)
		if err != nil {
			return Result{}, err
		}
		c.Version++
		return Result{Renewals: renewals}, nil

	default:
		return Result{}, ErrUnknownOp
	}
}

// Operation mirrors wire.Operation without importing the wire package,
// keeping this package dependency-free; the engine translates between
// the two at its boundary.
type Operation string

const (
	OpPrestamo   Operation = "PRESTAMO"
	OpDevolucion Operation = "DEVOLUCION"
	OpRenovacion Operation = "RENOVACION"
)

// ErrUnknownOp signals an operation this catalog doesn't know how to apply.
var ErrUnknownOp = errors.New("UNKNOWN_OP")

// Result carries the operation-specific reply fields.
type Result struct {
	DueDate  string
	Renewals int
}
