package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vesaa/tsmreport/internal/config"
	"github.com/vesaa/tsmreport/internal/models"
	"github.com/vesaa/tsmreport/internal/parsing"
	"github.com/vesaa/tsmreport/internal/report"
)

// Route pairs a group with the contact field its report goes to.
type Route struct {
	Group   *parsing.Group
	Contact string
}

// Routes decides who receives which report. A group with a contact is one
// route. Nodes of a group without a contact that carry their own contact
// are regrouped by that contact under the group's name, one route each.
// Nodes left without any contact get no report.
func Routes(inst *parsing.Instance, logger *slog.Logger) []Route {
	var routes []Route
	for _, g := range inst.GroupList() {
		if g.Contact != "" {
			routes = append(routes, Route{Group: g, Contact: g.Contact})
			continue
		}

		var order []string
		byContact := map[string][]*parsing.Node{}
		for _, n := range g.Nodes {
			if n.Contact == "" {
				logger.Debug("node has no contact", "group", g.Name, "node", n.Name)
				continue
			}
			if _, ok := byContact[n.Contact]; !ok {
				order = append(order, n.Contact)
			}
			byContact[n.Contact] = append(byContact[n.Contact], n)
		}
		for _, contact := range order {
			loose := parsing.NewGroup(g.Name, contact, byContact[contact]...)
			loose.SortByFailed()
			routes = append(routes, Route{Group: loose, Contact: contact})
		}
	}
	return routes
}

// Recorder persists delivery attempts.
type Recorder interface {
	SaveDelivery(d *models.Delivery) error
}

// Result is the outcome of one route.
type Result struct {
	Group      string
	Recipients []string
	Subject    string
	Status     string
	Skipped    bool
	Err        error
}

// Dispatcher renders and sends the reports of one instance.
type Dispatcher struct {
	Sender   Sender
	Renderer *report.Renderer
	Mail     config.MailConfig
	RunID    string
	Location *time.Location
	Now      func() time.Time
	// Recorder is optional.
	Recorder Recorder
	Logger   *slog.Logger
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dispatcher) now() time.Time {
	t := time.Now()
	if d.Now != nil {
		t = d.Now()
	}
	if d.Location != nil {
		t = t.In(d.Location)
	}
	return t
}

// Dispatch sends one mail per route of inst. A failing route does not stop
// the others; all failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, inst *parsing.Instance) ([]Result, error) {
	log := d.logger().With("instance", inst.ID)
	var (
		results []Result
		errs    []error
	)
	for _, r := range Routes(inst, log) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res := d.send(ctx, inst.ID, r, log)
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", r.Group.Name, res.Err))
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, instance string, r Route, log *slog.Logger) Result {
	g := r.Group
	res := Result{Group: g.Name, Status: report.Status(g)}
	log = log.With("group", g.Name)

	if !g.HasJobs() && !g.HasVMResults() {
		log.Info("No backups in 24 hours detected")
		res.Skipped = true
		return res
	}

	to, err := ParseContacts(r.Contact)
	if err != nil {
		res.Err = err
		log.Warn("skipping report", "error", err)
		return res
	}
	res.Recipients = to

	now := d.now()
	html, err := d.Renderer.RenderString(report.Data{Instance: instance, Group: g, GeneratedAt: now})
	if err != nil {
		res.Err = fmt.Errorf("rendering: %w", err)
		return res
	}
	res.Subject = Subject(d.Mail.SubjectTemplate, SubjectVars{
		Status:   res.Status,
		Instance: instance,
		Group:    g.Name,
		Time:     now,
	})

	if d.Mail.ReplyToAddr == "" {
		log.Debug("no reply-to configured")
	}
	env := Envelope{
		From:    d.Mail.FromAddr,
		To:      to,
		ReplyTo: d.Mail.ReplyToAddr,
		Bcc:     d.Mail.BccAddr,
		Subject: res.Subject,
		HTML:    html,
	}
	log.Info("sending report", "to", strings.Join(to, ","), "status", res.Status)
	res.Err = d.Sender.Send(ctx, env)
	if res.Err != nil {
		log.Error("report not delivered", "error", res.Err)
	}
	d.record(instance, res, now, log)
	return res
}

func (d *Dispatcher) record(instance string, res Result, at time.Time, log *slog.Logger) {
	if d.Recorder == nil {
		return
	}
	rec := &models.Delivery{
		RunID:      d.RunID,
		Instance:   instance,
		Group:      res.Group,
		Recipients: strings.Join(res.Recipients, ","),
		Subject:    res.Subject,
		Status:     res.Status,
		SentAt:     at,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := d.Recorder.SaveDelivery(rec); err != nil {
		log.Warn("recording delivery failed", "error", err)
	}
}
