package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	gocommandadapter "github.com/goliatone/go-drive-gateway/adapters/gocommand"
	"github.com/goliatone/go-drive-gateway/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const maxInboundLine = 4 << 20

func newOpsCmd(a *app) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Print the operation catalog with input schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			operations, err := gocommandadapter.ListOperations(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			return a.writeJSON(operations)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only list operations whose name starts with prefix")
	return cmd
}

func newCallCmd(a *app) *cobra.Command {
	var rawArgs string
	cmd := &cobra.Command{
		Use:   "call <operation>",
		Short: "Dispatch one operation and print its envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			args := core.Args{}
			if strings.TrimSpace(rawArgs) != "" {
				if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
					return fmt.Errorf("--args must be a JSON object: %w", err)
				}
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			envelope := a.invoke(cmd.Context(), core.InboundCall{OperationName: positional[0], Arguments: args})
			if err := a.writeJSON(envelope); err != nil {
				return err
			}
			if !envelope.IsSuccess() {
				return errCallFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "", "Operation arguments as a JSON object")
	return cmd
}

type serveResponse struct {
	ID     string        `json:"id"`
	Result core.Envelope `json:"result"`
}

func newServeCmd(a *app) *cobra.Command {
	var (
		concurrency int
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve JSON-lines inbound calls from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			if metricsAddr != "" {
				stop, err := a.serveMetrics(metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}
			return a.serve(ctx, concurrency)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "Maximum calls in flight")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address")
	return cmd
}

func (a *app) serve(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	var (
		mu      sync.Mutex
		encoder = json.NewEncoder(a.out)
		group   errgroup.Group
	)
	group.SetLimit(concurrency)
	write := func(response serveResponse) {
		mu.Lock()
		defer mu.Unlock()
		if err := encoder.Encode(response); err != nil {
			a.logger.Error("serve write failed", "error", err.Error())
		}
	}

	scanner := bufio.NewScanner(a.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxInboundLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		group.Go(func() error {
			var call core.InboundCall
			if err := json.Unmarshal([]byte(line), &call); err != nil {
				write(serveResponse{Result: core.Fail(core.KindInvalidArgument, fmt.Sprintf("invalid inbound call: %v", err), nil)})
				return nil
			}
			write(serveResponse{ID: call.ID, Result: a.invoke(ctx, call)})
			return nil
		})
	}
	waitErr := group.Wait()
	return errors.Join(scanner.Err(), waitErr)
}

// invoke goes through the command bus. Message validation failures become
// InvalidArgument envelopes like any other dispatch failure.
func (a *app) invoke(ctx context.Context, call core.InboundCall) core.Envelope {
	envelope, err := gocommandadapter.Invoke(ctx, call)
	if err != nil {
		return core.NormalizeResult(nil, err)
	}
	return envelope
}

func (a *app) serveMetrics(addr string) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err.Error())
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect or refresh the stored credential",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the credential state without tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			state, err := gocommandadapter.CredentialState(cmd.Context())
			if err != nil {
				return err
			}
			return a.writeJSON(state)
		},
	})

	var reason string
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh and persist the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			state, err := gocommandadapter.RefreshCredential(cmd.Context(), reason)
			if err != nil {
				return err
			}
			return a.writeJSON(state)
		},
	}
	refresh.Flags().StringVar(&reason, "reason", "manual", "Reason recorded with the refresh")
	cmd.AddCommand(refresh)
	return cmd
}
