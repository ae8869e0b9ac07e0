package cpclient

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Run submits each parsed request to the gateway in order, pacing
// submissions by pace and bounding each one by perRequestTimeout. A
// timed-out or transport-failed request is logged and the stream
// advances — the CP never retries at its own layer (spec.md §4.1).
func Run(ctx context.Context, c *Client, requests []ParsedRequest, perRequestTimeout, pace time.Duration, log *logrus.Entry) {
	for i, pr := range requests {
		reqCtx, cancel := WithTimeout(ctx, perRequestTimeout)
		reply, err := c.Submit(reqCtx, pr.Request)
		cancel()

		fields := logrus.Fields{"line": pr.Line, "operation": pr.Request.Operation, "bookCode": pr.Request.Payload.BookCode}
		if err != nil {
			log.WithFields(fields).WithError(err).Warn("request timed out or failed; discarding channel and advancing")
			c.ResetConnection()
		} else if !reply.OK {
			log.WithFields(fields).WithField("reason", reply.Reason).Info("request rejected")
		} else {
			log.WithFields(fields).Info("request accepted")
		}

		if i < len(requests)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pace):
			}
		}
	}
}
