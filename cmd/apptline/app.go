package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"apptline/internal/board"
	"apptline/internal/capture"
	"apptline/internal/config"
	"apptline/internal/ics"
	appLog "apptline/internal/log"
	"apptline/internal/metrics"
	"apptline/internal/model"
	"apptline/internal/push"
	"apptline/internal/timeline"
	"apptline/internal/web"
)

// reanchorSpec fires at the top of every hour so windows advance even
// when no feed changes.
const reanchorSpec = "0 * * * *"

type app struct {
	conf     *config.Config
	loc      *time.Location
	exporter *metrics.Exporter
	boards   *board.Registry
	hub      *push.Hub
	web      *web.Server
}

func newApp(conf *config.Config) (*app, error) {
	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}
	if len(conf.Resources) == 0 {
		appLog.Warn("no resources configured; the timeline will be empty")
	}

	exporter := metrics.NewExporter(nil)

	feeds := make([]ics.Source, 0, len(conf.Resources))
	for _, r := range conf.Resources {
		if r.ID == "" {
			appLog.Warn("skipping resource without id", "name", r.Name)
			continue
		}
		feeds = append(feeds, ics.Source{ID: r.ID, URL: r.URL})
	}
	source := ics.NewFeedSource(ics.NewFetcher(conf.CacheDir), feeds, loc, conf.HiddenStatuses())

	a := &app{
		conf:     conf,
		loc:      loc,
		exporter: exporter,
		boards:   board.NewRegistry(source, time.Now, exporter),
		hub:      push.NewHub(push.WithClientGauge(exporter.SetWebSocketClients)),
	}

	opts := timeline.Options{Location: loc, SplitAcrossBuckets: conf.SplitAcrossBuckets}
	for _, f := range feeds {
		r, _ := conf.Resource(f.ID)
		b := board.New(r.ID, r.Name, conf.SpanHours, opts, board.WithRecorder(exporter))
		a.boards.Add(b)
		a.wire(b)
	}

	a.web = web.NewServer(conf, a.boards, a.hub, exporter.Handler())
	return a, nil
}

// wire routes published updates into b and streams b's snapshots to
// WebSocket clients on its topic.
func (a *app) wire(b *board.Board) {
	id := b.ID()
	a.hub.Subscribe(id, func(msg model.UpdateMessage) {
		if _, err := a.boards.Apply(id, msg); err != nil {
			appLog.Warn("update rejected", "resource", id, "kind", msg.Kind, "id", msg.TargetID(), "err", err)
		}
	})
	b.OnChange(func(s board.Snapshot) {
		if err := a.hub.BroadcastJSON(id, push.EventLayout, s); err != nil {
			appLog.Error("broadcast layout failed", err, "resource", id)
		}
	})
}

// runOnce refreshes every board, writes the snapshots to w as JSON and,
// with dump set, captures the preview PNG through a temporary server.
func (a *app) runOnce(ctx context.Context, w io.Writer, dump bool) error {
	refreshErr := a.boards.RefreshAll(ctx)

	snaps := make([]board.Snapshot, 0)
	for _, b := range a.boards.Boards() {
		snaps = append(snaps, b.Snapshot())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snaps); err != nil {
		return fmt.Errorf("write layouts: %w", err)
	}

	if dump {
		if err := a.dumpSnapshot(ctx); err != nil {
			return errors.Join(refreshErr, err)
		}
	}
	return refreshErr
}

func (a *app) dumpSnapshot(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.web.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		if err := waitHealthy(gctx, a.baseURL()); err != nil {
			return err
		}
		return a.capture(gctx)
	})
	return g.Wait()
}

// serve runs the web server and the refresh schedule until ctx ends.
func (a *app) serve(ctx context.Context) error {
	if err := a.boards.RefreshAll(ctx); err != nil {
		appLog.Warn("initial refresh incomplete", "err", err)
	}

	sched, err := a.newScheduler(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.web.Run(gctx) })
	g.Go(func() error {
		sched.Start()
		appLog.Info("scheduler started", "refresh", a.conf.RefreshCron, "reanchor", reanchorSpec)
		<-gctx.Done()
		<-sched.Stop().Done()
		return nil
	})
	if a.conf.Snapshot.Enabled {
		g.Go(func() error {
			if err := waitHealthy(gctx, a.baseURL()); err != nil {
				return nil
			}
			a.captureLogged(gctx)
			return nil
		})
	}

	err = g.Wait()
	appLog.Info("apptline exiting")
	return err
}

func (a *app) newScheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(a.loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)

	if _, err := c.AddFunc(a.conf.RefreshCron, func() {
		if err := a.boards.RefreshAll(ctx); err != nil {
			appLog.Warn("scheduled refresh incomplete", "err", err)
		}
		if a.conf.Snapshot.Enabled {
			a.captureLogged(ctx)
		}
	}); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", a.conf.RefreshCron, err)
	}

	if _, err := c.AddFunc(reanchorSpec, func() {
		if err := a.boards.ReanchorAll(); err != nil {
			appLog.Error("re-anchor failed", err)
		}
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// cronLogger routes cron's messages into the app log. Routine scheduler
// chatter goes to debug; a skipped run is a warning.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	if msg == "skip" {
		appLog.Warn("cron: job still running, skipped", kv...)
		return
	}
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

func (a *app) baseURL() string {
	return "http://" + a.conf.Listen
}

func (a *app) capture(ctx context.Context) error {
	opts := capture.Options{
		BaseURL:    a.baseURL(),
		OutputPath: a.conf.Snapshot.Path,
		Width:      a.conf.Snapshot.Width,
		Height:     a.conf.Snapshot.Height,
		Tricolor:   a.conf.Snapshot.Tricolor,
		Planes:     a.conf.Snapshot.Planes,
	}
	if ba := a.conf.BasicAuth; ba != nil {
		opts.Username, opts.Password = ba.Username, ba.Password
	}

	start := time.Now()
	if err := capture.CaptureTimelinePNG(ctx, opts); err != nil {
		return err
	}
	appLog.Info("preview captured", "path", opts.OutputPath, "took", time.Since(start))
	return nil
}

func (a *app) captureLogged(ctx context.Context) {
	if err := a.capture(ctx); err != nil {
		appLog.Error("preview capture failed", err)
	}
}

// waitHealthy polls /health until the server answers or ctx ends.
func waitHealthy(ctx context.Context, base string) error {
	client := &http.Client{Timeout: time.Second}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", http.NoBody)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
