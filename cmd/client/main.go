// cmd/client is the Client Producer: it reads a request file and
// submits each line to a site's Load Gateway, one at a time, pacing
// submissions and discarding the connection on any timeout or error
// (spec.md §4.1).
//
// Usage:
//
//	libcli run requests.txt --gateway http://localhost:8090
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"library-network/internal/cpclient"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	gatewayAddr string
	timeout     time.Duration
	pace        time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "libcli",
		Short: "Client Producer for the library loan network",
	}

	root.PersistentFlags().StringVarP(&gatewayAddr, "gateway", "g",
		"http://localhost:8090", "Load Gateway address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Second,
		"per-request timeout")
	root.PersistentFlags().DurationVar(&pace, "pace", 500*time.Millisecond,
		"delay between submissions")

	root.AddCommand(runCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <request-file>",
		Short: "Submit every request in the given file to the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			entry := logrus.NewEntry(log)

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open request file: %w", err)
			}
			defer f.Close()

			requests, err := cpclient.ReadRequests(f, entry)
			if err != nil {
				return err
			}
			entry.WithField("count", len(requests)).Info("parsed request file")

			c := cpclient.New(gatewayAddr)
			cpclient.Run(context.Background(), c, requests, timeout, pace, entry)
			return nil
		},
	}
}
