package parsing

import "sort"

// Node is a backup client as listed in the server inventory.
//
// Contact is set only when the node overrides its group's contact.
type Node struct {
	Name           string                `json:"name"`
	Platform       string                `json:"platform"`
	GroupName      string                `json:"group"`
	Decommissioned bool                  `json:"decommissioned"`
	Contact        string                `json:"contact,omitempty"`
	Jobs           map[string]*JobStatus `json:"jobs"`
	Activity       ActivitySummary       `json:"activity"`
	VMResults      []VMResult            `json:"vm_results"`
}

// NewNode returns a node with an empty activity summary and job map.
func NewNode(name, platform, group string) *Node {
	return &Node{
		Name:      name,
		Platform:  platform,
		GroupName: group,
		Jobs:      map[string]*JobStatus{},
		Activity:  NewActivitySummary(name),
	}
}

// HasJobs reports whether any job of n has a known outcome.
func (n *Node) HasJobs() bool {
	for _, j := range n.Jobs {
		if j.Outcome != OutcomeUnknown {
			return true
		}
	}
	return false
}

// HasFailures reports whether any job of n did not succeed.
func (n *Node) HasFailures() bool {
	for _, j := range n.Jobs {
		if j.Outcome != OutcomeSuccessful {
			return true
		}
	}
	return false
}

// HasVMResults reports whether n has VM backups attached.
func (n *Node) HasVMResults() bool {
	return len(n.VMResults) > 0
}

// SortedJobs returns the jobs of n ordered by name.
func (n *Node) SortedJobs() []*JobStatus {
	jobs := make([]*JobStatus, 0, len(n.Jobs))
	for _, j := range n.Jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })
	return jobs
}

// Group is a policy domain: a set of nodes sharing a report recipient.
// Activity and VMSummary are reductions over Nodes, see Summarize.
type Group struct {
	Name      string          `json:"name"`
	Contact   string          `json:"contact,omitempty"`
	Activity  ActivitySummary `json:"activity"`
	VMSummary VMResult        `json:"vm_summary"`
	Nodes     []*Node         `json:"nodes"`
}

// NewGroup returns a group over nodes with its summaries computed.
func NewGroup(name, contact string, nodes ...*Node) *Group {
	g := &Group{Name: name, Contact: contact, Nodes: nodes}
	g.Summarize()
	return g
}

// Summarize recomputes the group summaries from its members.
func (g *Group) Summarize() {
	act := NewActivitySummary("")
	vm := VMResult{BackedUpUnit: DefaultBytesUnit}
	for _, n := range g.Nodes {
		act = act.Combine(n.Activity)
		for _, r := range n.VMResults {
			vm = vm.Combine(r)
		}
	}
	act.NodeName = ""
	g.Activity = act
	g.VMSummary = vm
}

// SortByFailed orders the members by failed object count, most first.
// Nodes with equal counts keep their inventory order.
func (g *Group) SortByFailed() {
	sort.SliceStable(g.Nodes, func(i, k int) bool {
		return g.Nodes[i].Activity.Failed > g.Nodes[k].Activity.Failed
	})
}

// HasJobs reports whether any member has a job with a known outcome.
func (g *Group) HasJobs() bool {
	for _, n := range g.Nodes {
		if n.HasJobs() {
			return true
		}
	}
	return false
}

// HasFailures reports whether any member has a job that did not succeed.
func (g *Group) HasFailures() bool {
	for _, n := range g.Nodes {
		if n.HasFailures() {
			return true
		}
	}
	return false
}

// HasVMResults reports whether any member has VM backups.
func (g *Group) HasVMResults() bool {
	for _, n := range g.Nodes {
		if n.HasVMResults() {
			return true
		}
	}
	return false
}
