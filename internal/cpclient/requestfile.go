package cpclient

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"library-network/internal/wire"

	"github.com/sirupsen/logrus"
)

// ParsedRequest is one line of the request file, already classified
// into a wire.Request.
type ParsedRequest struct {
	Line    int
	Request wire.Request
}

// ReadRequests parses a request-file stream: one request per line,
// fields separated by ';' — OPERATION;BOOK_CODE;USER_ID;YYYY-MM-DD.
// OPERATION is case-insensitive; blank lines and lines starting with
// '#' are ignored (spec.md §4.1). A malformed line is logged and
// skipped rather than aborting the whole run, matching the CP's
// general "log it and advance" resilience policy.
func ReadRequests(r io.Reader, log *logrus.Entry) ([]ParsedRequest, error) {
	scanner := bufio.NewScanner(r)
	var out []ParsedRequest
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		req, err := parseLine(line)
		if err != nil {
			log.WithFields(logrus.Fields{"line": lineNo, "text": line}).WithError(err).Warn("skipping malformed request line")
			continue
		}
		out = append(out, ParsedRequest{Line: lineNo, Request: req})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read request file: %w", err)
	}
	return out, nil
}

func parseLine(line string) (wire.Request, error) {
	fields := strings.Split(line, ";")
	if len(fields) != 4 {
		return wire.Request{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}

	op, err := parseOperation(fields[0])
	if err != nil {
		return wire.Request{}, err
	}

	return wire.Request{
		Operation: op,
		Payload: wire.Payload{
			BookCode: fields[1],
			UserID:   fields[2],
			AsOfDate: fields[3],
		},
	}, nil
}

func parseOperation(s string) (wire.Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(wire.OpPrestamo):
		return wire.OpPrestamo, nil
	case string(wire.OpDevolucion):
		return wire.OpDevolucion, nil
	case string(wire.OpRenovacion):
		return wire.OpRenovacion, nil
	default:
		return "", fmt.Errorf("unknown operation %q", s)
	}
}
