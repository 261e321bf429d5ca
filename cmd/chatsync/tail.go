package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aryamantandon18/connectly/internal/syncer"
	"github.com/aryamantandon18/connectly/internal/ws"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newTailCommand(opts *globalOptions) *cobra.Command {
	var target targetFlags
	var older int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print a channel or conversation and follow new messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := target.container()
			if err != nil {
				return err
			}
			if opts.token == "" {
				return errors.New("--token is required")
			}
			userID, err := subjectOf(opts.token)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			api := syncer.NewHTTPClient(opts.server, opts.token)
			live := syncer.NewLiveClient(api.LiveURL(opts.livePath), opts.token, userID)
			p := &printer{out: cmd.OutOrStdout(), seen: make(map[string]bool)}

			live.Subscribe(ws.EventConnect, func(json.RawMessage) { p.status("Live") })
			live.Subscribe(ws.EventDisconnect, func(json.RawMessage) { p.status("Fallback: polling every 1s") })

			var view *syncer.View
			view = syncer.NewView(c, api, live, syncer.WithOnChange(func() { p.render(view) }))

			p.status("Fallback: polling every 1s")
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return live.Run(gctx) })
			if err := view.Mount(gctx); err != nil {
				return err
			}
			defer view.Close()

			for i := 0; i < older; i++ {
				if err := waitReady(gctx, view); err != nil {
					break
				}
				if !view.HasMore() {
					break
				}
				if err := view.LoadOlder(gctx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "load older: %v\n", err)
					break
				}
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	target.bind(cmd)
	cmd.Flags().IntVar(&older, "older", 0, "number of older pages to load on start")
	return cmd
}

// waitReady blocks until v has loaded its first page or ctx ends.
func waitReady(ctx context.Context, v *syncer.View) error {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for v.Status() == syncer.StatusLoading {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if v.Status() != syncer.StatusReady {
		return v.Err()
	}
	return nil
}

// printer writes each message once, oldest first, plus connection status
// changes.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	seen   map[string]bool
	last   string
	failed error
}

func (p *printer) status(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s == p.last {
		return
	}
	p.last = s
	fmt.Fprintf(p.out, "-- %s\n", s)
}

func (p *printer) render(v *syncer.View) {
	if v == nil {
		return
	}
	msgs := v.Messages()
	err := v.Err()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil && (p.failed == nil || err.Error() != p.failed.Error()) {
		fmt.Fprintf(p.out, "-- error: %v\n", err)
	}
	p.failed = err

	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if p.seen[m.ID] {
			continue
		}
		p.seen[m.ID] = true
		line := m.Content
		if m.FileURL != nil {
			line += " [" + *m.FileURL + "]"
		}
		if m.Edited() {
			line += " (edited)"
		}
		fmt.Fprintf(p.out, "%s  %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Author(), line)
	}
}
