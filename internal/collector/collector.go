package collector

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/vesaa/tsmreport/internal/parsing"
)

// Collector gathers the record sets of one backup server instance.
type Collector struct {
	Exec      Executor
	Retention int
	// Workers bounds concurrent console sessions. Zero means one per
	// logical CPU.
	Workers  int
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// DefaultWorkers returns the logical CPU count.
func DefaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func (c *Collector) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return DefaultWorkers()
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Collect runs the inventory and VM queries, then the per-node event and
// activity queries in parallel. Any transport error cancels the remaining
// queries and is returned.
func (c *Collector) Collect(ctx context.Context) (parsing.RecordSets, error) {
	rs := parsing.RecordSets{
		Jobs:     map[string][]string{},
		Activity: map[string][]string{},
	}

	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	retention := c.Retention
	if retention <= 0 {
		retention = parsing.DefaultRetention
	}

	inv, err := c.query(ctx, InventoryQuery())
	if err != nil {
		return rs, err
	}
	rs.Inventory = inv

	now = now.In(loc)
	vms, err := c.query(ctx, VMQuery(now.Add(-24*time.Hour), now))
	if err != nil {
		return rs, err
	}
	rs.VMs = vms

	nodes := nodeNames(inv)
	c.logger().Info("collecting node records", "nodes", len(nodes), "workers", c.workers())

	var mu sync.Mutex
	store := func(m map[string][]string, node string, lines []string) {
		if len(lines) == 0 {
			return
		}
		mu.Lock()
		m[node] = lines
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for _, node := range nodes {
		g.Go(func() error {
			lines, err := c.query(gctx, EventQuery(node, retention))
			if err != nil {
				return err
			}
			store(rs.Jobs, node, lines)
			return nil
		})
		g.Go(func() error {
			lines, err := c.query(gctx, ActivityQuery(node))
			if err != nil {
				return err
			}
			store(rs.Activity, node, lines)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rs, err
	}
	return rs, nil
}

func (c *Collector) query(ctx context.Context, q string) ([]string, error) {
	out, err := c.Exec.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// nodeNames returns the first column of each inventory line, deduplicated.
func nodeNames(inventory []string) []string {
	seen := make(map[string]bool, len(inventory))
	var names []string
	for _, line := range inventory {
		name, _, _ := strings.Cut(line, ",")
		name = strings.Trim(strings.TrimSpace(name), `"`)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
