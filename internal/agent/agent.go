// Package agent runs report cycles: it collects or loads the record sets of
// every configured instance, builds the group hierarchy, mails the reports
// and exports them as HTML files.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vesaa/tsmreport/internal/collector"
	"github.com/vesaa/tsmreport/internal/config"
	"github.com/vesaa/tsmreport/internal/mailer"
	"github.com/vesaa/tsmreport/internal/models"
	"github.com/vesaa/tsmreport/internal/parsing"
	"github.com/vesaa/tsmreport/internal/report"
	"github.com/vesaa/tsmreport/internal/server"
)

// Options are the per-invocation switches of the run command.
type Options struct {
	UseCache    bool
	ExportDir   string
	DisableMail bool
	// Instances restricts the cycle; empty means all configured instances.
	Instances []string
	// Interval repeats the cycle until the context ends; zero runs once.
	Interval time.Duration
}

// ExecutorFunc returns the console executor of one instance.
type ExecutorFunc func(instance string) collector.Executor

// Runner owns the long-lived pieces of a report cycle.
type Runner struct {
	Config   *config.Config
	Store    *server.Store
	Renderer *report.Renderer
	// Sender is required unless mail is disabled.
	Sender mailer.Sender
	// Executor overrides the dsmadmc executors built from Config.
	Executor ExecutorFunc
	Logger   *slog.Logger
	Now      func() time.Time
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Loop runs one cycle, then one per Interval until ctx is done. Cycle
// errors are logged and do not stop the loop; the last one is returned
// when running once.
func (r *Runner) Loop(ctx context.Context, opts Options) error {
	err := r.Cycle(ctx, opts)
	if opts.Interval <= 0 {
		return err
	}
	if err != nil {
		r.logger().Error("report cycle failed", "error", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	r.logger().Info("repeating report cycle", "interval", opts.Interval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Cycle(ctx, opts); err != nil {
				r.logger().Error("report cycle failed", "error", err)
			}
		}
	}
}

// Cycle processes every selected instance. A failing instance does not stop
// the others; all failures are joined into the returned error.
func (r *Runner) Cycle(ctx context.Context, opts Options) error {
	instances := opts.Instances
	if len(instances) == 0 {
		instances = r.Config.Instances
	}

	executor, release, err := r.connect()
	if err != nil {
		return err
	}
	defer release()

	var errs []error
	for _, id := range instances {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.RunInstance(ctx, id, executor(id), opts); err != nil {
			r.logger().Error("instance failed", "instance", id, "error", err)
			errs = append(errs, fmt.Errorf("instance %s: %w", id, err))
		}
	}
	r.prune()
	return errors.Join(errs...)
}

// RunInstance produces, mails and exports the reports of one instance.
func (r *Runner) RunInstance(ctx context.Context, id string, exec collector.Executor, opts Options) error {
	log := r.logger().With("instance", id)
	loc, err := r.Config.Location()
	if err != nil {
		return err
	}

	snap, err := r.snapshot(ctx, id, exec, opts.UseCache, loc, log)
	if err != nil {
		return err
	}

	b := parsing.Builder{Now: snap.CollectedAt, Retention: r.Config.RetentionDays, Location: loc, Logger: log}
	inst, err := b.Build(id, snap.RecordSets())
	if err != nil {
		return err
	}

	var errs []error
	if opts.ExportDir != "" {
		if err := r.export(opts.ExportDir, inst, snap.CollectedAt.In(loc), log); err != nil {
			errs = append(errs, err)
		}
	}
	if opts.DisableMail {
		log.Info("mail sending disabled")
		return errors.Join(errs...)
	}
	if r.Sender == nil {
		return errors.Join(append(errs, errors.New("no mail sender configured"))...)
	}

	d := &mailer.Dispatcher{
		Sender:   r.Sender,
		Renderer: r.Renderer,
		Mail:     r.Config.Mail,
		RunID:    snap.RunID,
		Location: loc,
		Now:      r.Now,
		Logger:   log,
	}
	if r.Store != nil {
		d.Recorder = r.Store
	}
	results, err := d.Dispatch(ctx, inst)
	if err != nil {
		errs = append(errs, err)
	}
	log.Info("reports dispatched", "routes", len(results), "run_id", snap.RunID)
	return errors.Join(errs...)
}

// snapshot returns a cached snapshot when allowed and fresh enough,
// otherwise collects a new one and caches it.
func (r *Runner) snapshot(ctx context.Context, id string, exec collector.Executor, useCache bool, loc *time.Location, log *slog.Logger) (*models.Snapshot, error) {
	now := r.now()
	if useCache && r.Store != nil {
		snap, err := r.Store.LatestSnapshot(id, r.Config.Cache.MaxAge, now)
		if err == nil {
			log.Info("using cached snapshot", "run_id", snap.RunID, "collected_at", snap.CollectedAt)
			return snap, nil
		}
		if !errors.Is(err, server.ErrNoSnapshot) {
			log.Warn("reading snapshot cache failed", "error", err)
		}
	}

	c := &collector.Collector{
		Exec:      exec,
		Retention: r.Config.RetentionDays,
		Workers:   r.workers(),
		Location:  loc,
		Now:       r.Now,
		Logger:    log,
	}
	rs, err := c.Collect(ctx)
	if err != nil {
		return nil, err
	}
	snap := models.NewSnapshot(id, now.UTC(), rs)
	if r.Store != nil {
		if err := r.Store.SaveSnapshot(snap); err != nil {
			log.Warn("caching snapshot failed", "error", err)
		}
	}
	return snap, nil
}

func (r *Runner) export(dir string, inst *parsing.Instance, at time.Time, log *slog.Logger) error {
	var errs []error
	for _, g := range inst.GroupList() {
		path, err := r.Renderer.Export(dir, report.Data{Instance: inst.ID, Group: g, GeneratedAt: at})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		log.Info("report exported", "group", g.Name, "path", path)
	}
	return errors.Join(errs...)
}

func (r *Runner) prune() {
	if r.Store == nil || r.Config.Cache.Keep <= 0 {
		return
	}
	if _, err := r.Store.Prune(r.now().Add(-r.Config.Cache.Keep)); err != nil {
		r.logger().Warn("pruning snapshot cache failed", "error", err)
	}
}

// workers bounds concurrent console sessions. Over SSH every session shares
// one connection, so the pool is capped at ssh.max_sessions.
func (r *Runner) workers() int {
	n := r.Config.Workers
	if n <= 0 {
		n = collector.DefaultWorkers()
	}
	if limit := r.Config.SSH.MaxSessions; r.Config.SSH.Host != "" && limit > 0 && n > limit {
		n = limit
	}
	return n
}

// connect returns the executor factory for one cycle and a release func.
// With ssh.host set all instances share one SSH connection.
func (r *Runner) connect() (ExecutorFunc, func(), error) {
	if r.Executor != nil {
		return r.Executor, func() {}, nil
	}

	cfg := r.Config
	base := collector.Dsmadmc{
		Path:     cfg.DsmadmcPath,
		User:     cfg.User,
		Password: cfg.Password,
		Timeout:  cfg.QueryTimeout(),
	}
	if cfg.SSH.Host == "" {
		return func(instance string) collector.Executor {
			d := base
			d.Instance = instance
			return &collector.LocalExecutor{Dsmadmc: d}
		}, func() {}, nil
	}

	client, err := collector.DialSSH(cfg.SSH.Host, cfg.SSH.User, cfg.SSH.Password, cfg.SSH.KeyPath)
	if err != nil {
		return nil, nil, err
	}
	r.logger().Info("running dsmadmc over SSH", "host", cfg.SSH.Host)
	return func(instance string) collector.Executor {
		d := base
		d.Instance = instance
		return &collector.SSHExecutor{Dsmadmc: d, Client: client}
	}, func() { _ = client.Close() }, nil
}
