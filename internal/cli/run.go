package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/kiosk"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// IDGenerator overrides the order ID generator (for testing).
	// If nil, the kiosk uses UUIDv7.
	IDGenerator checkout.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the kiosk on a JSON-lines command stream",
		Long: `Run the kiosk event loop, reading one JSON command per line from stdin
and writing one response per line to stdout.

Customer commands go through the checkout state machine:
  {"cmd":"add","beverage_id":"cola","volume_ml":300,"quantity":2}
  {"cmd":"checkout"}
  {"cmd":"consent","accept":true}
  {"cmd":"verify_age"}
  {"cmd":"pay"}
  {"cmd":"new_order"}

Operator commands act on the hardware directly:
  {"cmd":"emergency_stop"}  {"cmd":"resume"}  {"cmd":"status"}

The loop stops at end of input or on SIGINT/SIGTERM; every valve is closed
before the command exits.

Example:
  kiosk run --config kiosk.yaml < session.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKiosk(opts, cmd)
		},
	}

	return cmd
}

func runKiosk(opts *RunOptions, cmd *cobra.Command) error {
	env, err := LoadEnv(opts.RootOptions, NeedBackend|NeedStore|NeedPublisher)
	if err != nil {
		return err
	}
	defer env.Close()

	kopts := []kiosk.Option{kiosk.WithStore(env.Store), kiosk.WithPublisher(env.Pub)}
	if opts.IDGenerator != nil {
		kopts = append(kopts, kiosk.WithIDGenerator(opts.IDGenerator))
	}
	k, err := kiosk.New(env.Config, env.Catalog, env.Backend, clock.Real{}, kopts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create kiosk", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := k.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("kiosk loop stopped", "error", err)
		}
	}()

	slog.Info("kiosk ready", "kiosk", env.Config.Kiosk.ID, "backend", env.Backend.Name(), "db", env.Config.Store.Path)

	out := json.NewEncoder(cmd.OutOrStdout())
	err = serveLines(ctx, k, cmd.InOrStdin(), func(resp CLIResponse) error {
		if opts.Format == "json" {
			return out.Encode(resp)
		}
		return writeResponseText(cmd.OutOrStdout(), resp)
	})

	k.Stop()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "command stream failed", err)
	}
	slog.Info("kiosk stopped gracefully")
	return nil
}

// serveLines feeds every input line to the kiosk and emits one response per
// line. Lines are read on a separate goroutine so that a signal ends the
// stream even while stdin is idle.
//
// Operator commands are answered as soon as they are read, even while a
// customer command (a pay that is pouring, say) is still running. Customer
// commands run one at a time, in input order, on a worker goroutine.
func serveLines(ctx context.Context, k *kiosk.Kiosk, in io.Reader, emit func(CLIResponse) error) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var (
		mu      sync.Mutex
		emitErr error
	)
	send := func(resp CLIResponse) {
		mu.Lock()
		defer mu.Unlock()
		if emitErr == nil {
			emitErr = emit(resp)
		}
	}
	failed := func() error {
		mu.Lock()
		defer mu.Unlock()
		return emitErr
	}

	work := make(chan []byte)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for line := range work {
			send(handleLine(ctx, k, line))
		}
	}()
	finish := func(err error) error {
		close(work)
		wg.Wait()
		if err == nil {
			err = failed()
		}
		return err
	}

	// pending holds customer lines read while the worker is busy, so the
	// reader never waits behind a pour.
	var pending [][]byte
	for {
		var next chan<- []byte
		var head []byte
		if len(pending) > 0 {
			next, head = work, pending[0]
		}
		if err := failed(); err != nil {
			return finish(err)
		}

		select {
		case <-ctx.Done():
			return finish(ctx.Err())
		case next <- head:
			pending = pending[1:]
		case line, ok := <-lines:
			if !ok {
				for _, l := range pending {
					select {
					case work <- l:
					case <-ctx.Done():
						return finish(ctx.Err())
					}
				}
				select {
				case err := <-readErr:
					return finish(err)
				default:
					return finish(ctx.Err())
				}
			}
			if len(line) == 0 {
				continue
			}
			if resp, ok := handleOperator(k, line); ok {
				send(resp)
				continue
			}
			pending = append(pending, line)
		}
	}
}

// handleOperator answers emergency_stop, resume and status. It reports false
// for any other line, including malformed JSON.
func handleOperator(k *kiosk.Kiosk, line []byte) (CLIResponse, bool) {
	var c kiosk.Command
	if err := json.Unmarshal(line, &c); err != nil || !c.Kind.Operator() {
		return CLIResponse{}, false
	}
	switch c.Kind {
	case kiosk.CmdEmergencyStop:
		k.EmergencyStop()
		return CLIResponse{Status: "ok", Data: map[string]bool{"halted": true}}, true
	case kiosk.CmdResume:
		k.Resume()
		return CLIResponse{Status: "ok", Data: map[string]bool{"halted": false}}, true
	default:
		return CLIResponse{Status: "ok", Data: k.Hardware()}, true
	}
}

// handleLine runs one customer command through the kiosk queue and builds
// its response.
func handleLine(ctx context.Context, k *kiosk.Kiosk, line []byte) CLIResponse {
	var c kiosk.Command
	if err := json.Unmarshal(line, &c); err != nil {
		return CLIResponse{Status: "error", Error: &CLIError{Code: ErrCodeCommand, Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	reply, err := k.Do(ctx, c)
	resp := CLIResponse{Status: "ok", Data: reply}
	if reply.Order != nil {
		resp.OrderID = reply.Order.ID
	}
	if err != nil {
		code := string(checkout.CodeOf(err))
		if code == "" {
			code = ErrCodeCommand
		}
		resp.Status = "error"
		resp.Error = &CLIError{Code: code, Message: err.Error()}
	}
	return resp
}

// writeResponseText renders a response as one human-readable line.
func writeResponseText(w io.Writer, resp CLIResponse) error {
	if resp.Error != nil {
		_, err := fmt.Fprintf(w, "Error [%s]: %s\n", resp.Error.Code, resp.Error.Message)
		return err
	}
	reply, ok := resp.Data.(kiosk.Reply)
	if !ok {
		_, err := fmt.Fprintf(w, "%v\n", resp.Data)
		return err
	}
	units := 0
	for _, l := range reply.Lines {
		units += l.Quantity
	}
	_, err := fmt.Fprintf(w, "state=%s units=%d total=%s", reply.State, units, reply.Total.StringFixed(2))
	if err != nil {
		return err
	}
	if reply.Report != nil {
		_, err = fmt.Fprintf(w, " fulfillment=%s delivered=%d/%d", reply.Report.Fulfillment, reply.Report.Delivered, reply.Report.Units)
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w)
	return err
}
