package parsing

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// decommissioned is the inventory flag of a retired node.
const decommissioned = "YES"

// Inventory columns.
const (
	invNode = iota
	invPlatform
	invGroup
	invDecomm
	invGroupContact
	invNodeContact
	inventoryFields
)

// RecordSets are the raw console lines of one instance. Jobs and Activity
// are keyed by node name; a node without records has no entry.
type RecordSets struct {
	Inventory []string            `json:"inventory"`
	Jobs      map[string][]string `json:"jobs"`
	Activity  map[string][]string `json:"activity"`
	VMs       []string            `json:"vms"`
}

// Instance is the parsed state of one backup server.
type Instance struct {
	ID        string
	Nodes     map[string]*Node
	Groups    map[string]*Group
	VMResults map[string]VMResult

	order []string
}

// NewInstance returns an empty instance.
func NewInstance(id string) *Instance {
	return &Instance{
		ID:        id,
		Nodes:     map[string]*Node{},
		Groups:    map[string]*Group{},
		VMResults: map[string]VMResult{},
	}
}

// GroupList returns the groups in inventory order.
func (inst *Instance) GroupList() []*Group {
	out := make([]*Group, 0, len(inst.order))
	for _, name := range inst.order {
		out = append(out, inst.Groups[name])
	}
	return out
}

// Builder assembles an Instance from its record sets in three passes:
// inventory, then jobs and activity, then VM results.
type Builder struct {
	Now       time.Time
	Retention int
	Location  *time.Location
	Logger    *slog.Logger
}

func (b Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// Build runs all passes over rs.
func (b Builder) Build(id string, rs RecordSets) (*Instance, error) {
	inst := NewInstance(id)
	if err := b.ParseInventory(inst, rs.Inventory); err != nil {
		return nil, fmt.Errorf("instance %s: inventory: %w", id, err)
	}
	if err := b.AttachJobsAndActivity(inst, rs.Jobs, rs.Activity); err != nil {
		return nil, fmt.Errorf("instance %s: %w", id, err)
	}
	if err := b.AttachVMResults(inst, rs.VMs); err != nil {
		return nil, fmt.Errorf("instance %s: VM results: %w", id, err)
	}
	b.logger().Info("instance parsed", "instance", id, "groups", len(inst.Groups),
		"nodes", len(inst.Nodes), "vms", len(inst.VMResults))
	return inst, nil
}

// ParseInventory creates nodes and groups from inventory lines. A node
// listed twice keeps its first line.
func (b Builder) ParseInventory(inst *Instance, lines []string) error {
	for _, line := range lines {
		if blank(line) {
			continue
		}
		f, err := splitRecord(line)
		if err != nil {
			return err
		}
		if len(f) != inventoryFields {
			return fmt.Errorf("%w: inventory line %q has %d fields, want %d", ErrMalformedRecord, line, len(f), inventoryFields)
		}

		name := strings.TrimSpace(f[invNode])
		if _, dup := inst.Nodes[name]; dup {
			b.logger().Debug("duplicate inventory line ignored", "node", name)
			continue
		}

		groupName := strings.TrimSpace(f[invGroup])
		groupContact := strings.TrimSpace(f[invGroupContact])
		nodeContact := strings.Trim(strings.TrimSpace(f[invNodeContact]), `"`)

		node := NewNode(name, strings.TrimSpace(f[invPlatform]), groupName)
		node.Decommissioned = strings.TrimSpace(f[invDecomm]) == decommissioned
		if nodeContact != "" && groupContact == "" {
			node.Contact = nodeContact
		}
		inst.Nodes[node.Name] = node

		g, ok := inst.Groups[groupName]
		if !ok {
			g = NewGroup(groupName, "")
			inst.Groups[groupName] = g
			inst.order = append(inst.order, groupName)
		}
		g.Nodes = append(g.Nodes, node)
		if groupContact != "" {
			g.Contact = groupContact
		}
	}
	return nil
}

// AttachJobsAndActivity parses the per-node job and activity records, rolls
// them up per group and sorts each group by failed objects.
func (b Builder) AttachJobsAndActivity(inst *Instance, jobs, activity map[string][]string) error {
	sp := ScheduleParser{Now: b.Now, Retention: b.Retention, Location: b.Location, Logger: b.Logger}
	for _, g := range inst.GroupList() {
		for _, n := range g.Nodes {
			if lines, ok := jobs[n.Name]; ok {
				parsed, err := sp.Parse(lines)
				if err != nil {
					return fmt.Errorf("jobs of node %s: %w", n.Name, err)
				}
				n.Jobs = parsed
			}
			if lines, ok := activity[n.Name]; ok && len(lines) > 1 {
				sum, err := ParseActivity(n.Name, lines)
				if err != nil {
					return fmt.Errorf("activity of node %s: %w", n.Name, err)
				}
				n.Activity = n.Activity.Combine(sum)
			}
		}
		g.Summarize()
		g.SortByFailed()
	}
	return nil
}

// AttachVMResults parses VM result lines. Results whose entity is not a
// known node are kept in inst.VMResults but attached nowhere.
func (b Builder) AttachVMResults(inst *Instance, lines []string) error {
	for _, line := range lines {
		if blank(line) {
			continue
		}
		f, err := splitRecord(line)
		if err != nil {
			return err
		}
		r, err := NewVMResult(f, b.Location)
		if err != nil {
			return err
		}
		inst.VMResults[r.VMName] = r

		n, ok := inst.Nodes[r.Entity]
		if !ok {
			b.logger().Debug("VM result for unknown node", "vm", r.VMName, "entity", r.Entity)
			continue
		}
		n.VMResults = append(n.VMResults, r)
		if g, ok := inst.Groups[n.GroupName]; ok {
			g.VMSummary = g.VMSummary.Combine(r)
		}
	}
	return nil
}
