// Package outbox is a durable, append-only queue for the asynchronous
// DEVOLUCION/RENOVACION events the Load Gateway publishes. The Load
// Gateway appends an event and fsyncs it before ACKing the Client
// Producer; the matching Event Actor drains the queue and marks
// entries applied. A crash between "LG ACKed" and "EA applied" does
// not lose the event on restart, which resolves the durability gap
// spec.md §9 calls out as a SHOULD.
//
// Grounded on the teacher's internal/store/wal.go: an NDJSON
// append-only file, Sync()'d after every write, read back
// line-by-line on replay.
package outbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"library-network/internal/wire"
)

// Entry is one pending event plus its applied state.
type Entry struct {
	Seq     uint64          `json:"seq"`
	Event   wire.TopicEvent `json:"event"`
	Applied bool            `json:"applied"`
}

// Outbox is a single append-only NDJSON file per topic (one instance
// each for DEVOLUCION and RENOVACION, mirroring spec.md §6's two named
// channels per site).
type Outbox struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	nextSeq uint64
}

// Open opens (or creates) the outbox file at path and replays any
// entries left over from a prior run, so in-flight events survive a
// restart of the hosting process.
func Open(path string) (*Outbox, []Entry, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open outbox %s: %w", path, err)
	}

	entries, err := readAll(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("replay outbox %s: %w", path, err)
	}

	// Keep only the latest record per sequence number: Append writes an
	// unapplied record, MarkApplied later appends a tombstone record
	// for the same seq, and the latest one wins on replay.
	latest := make(map[uint64]Entry, len(entries))
	var maxSeq uint64
	for _, e := range entries {
		latest[e.Seq] = e
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}

	pending := make([]Entry, 0, len(latest))
	for _, e := range latest {
		if !e.Applied {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })

	return &Outbox{file: f, path: path, nextSeq: maxSeq + 1}, pending, nil
}

func readAll(f *os.File) ([]Entry, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	var out []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // corrupt line — skip rather than abort recovery
		}
		out = append(out, e)
	}
	if _, err := f.Seek(0, 2); err != nil { // back to append position
		return nil, err
	}
	return out, scanner.Err()
}

// Append durably records a new pending event and returns the new
// Entry, which carries its sequence number. Must complete before the Load Gateway ACKs the Client
// Producer (spec.md §9's durability enhancement).
func (o *Outbox) Append(evt wire.TopicEvent) (Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e := Entry{Seq: o.nextSeq, Event: evt, Applied: false}
	o.nextSeq++
	if err := o.write(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// MarkApplied appends a tombstone-style record marking seq as applied.
// The outbox is replay-only-of-latest-per-seq on restart: Open keeps
// the pending flag from the *last* record it saw for each seq.
func (o *Outbox) MarkApplied(e Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e.Applied = true
	return o.write(e)
}

func (o *Outbox) write(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := o.file.Write(data); err != nil {
		return err
	}
	return o.file.Sync()
}

// Close closes the underlying file.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.file.Close()
}
