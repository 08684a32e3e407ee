// Package report renders backup groups into HTML documents.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/vesaa/tsmreport/internal/parsing"
	"github.com/vesaa/tsmreport/webui"
)

// DisplayTimeLayout is used for every timestamp shown to recipients.
const DisplayTimeLayout = "02.01.2006 15:04:05"

// Status words derived from Group.HasFailures.
const (
	StatusOK   = "OKAY"
	StatusWarn = "WARN"
)

// Status returns StatusWarn when any job of g did not succeed.
func Status(g *parsing.Group) string {
	if g.HasFailures() {
		return StatusWarn
	}
	return StatusOK
}

// Data is the input of one group report.
type Data struct {
	Instance    string
	Group       *parsing.Group
	GeneratedAt time.Time
	Host        string
}

// InstanceIndex lists the groups of one cached snapshot.
type InstanceIndex struct {
	Instance    string
	CollectedAt time.Time
	Groups      []*parsing.Group
}

// IndexData is the input of the report index page.
type IndexData struct {
	Instances []InstanceIndex
	Host      string
}

// Renderer holds the parsed report and index templates.
type Renderer struct {
	report *template.Template
	index  *template.Template
	host   string
}

// New parses the embedded templates. A non-empty templatePath replaces the
// embedded group report template.
func New(templatePath string) (*Renderer, error) {
	r := &Renderer{host: HostLabel()}

	var err error
	if templatePath != "" {
		r.report, err = template.New(filepath.Base(templatePath)).Funcs(funcs).ParseFiles(templatePath)
	} else {
		r.report, err = template.New("report.html").Funcs(funcs).ParseFS(webui.FS, webui.ReportTemplate)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}
	r.index, err = template.New("index.html").Funcs(funcs).ParseFS(webui.FS, webui.IndexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing index template: %w", err)
	}
	return r, nil
}

// Render writes the report of d.Group to w.
func (r *Renderer) Render(w io.Writer, d Data) error {
	if d.Host == "" {
		d.Host = r.host
	}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now()
	}
	return r.report.Execute(w, d)
}

// RenderString renders the report of d.Group into a string.
func (r *Renderer) RenderString(d Data) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderIndex writes the index page to w.
func (r *Renderer) RenderIndex(w io.Writer, d IndexData) error {
	if d.Host == "" {
		d.Host = r.host
	}
	return r.index.Execute(w, d)
}

// ExportFileName is the file a group report is exported to.
func ExportFileName(instance, group string) string {
	return fmt.Sprintf("%s_%s_report.html", instance, group)
}

// Export renders the report of d.Group into dir and returns the file path.
func (r *Renderer) Export(dir string, d Data) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	path := filepath.Join(dir, ExportFileName(d.Instance, d.Group.Name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	if err := r.Render(f, d); err != nil {
		f.Close()
		return "", fmt.Errorf("rendering %s: %w", path, err)
	}
	return path, f.Close()
}

// HostLabel describes the reporting host for report footers.
func HostLabel() string {
	info, err := host.Info()
	if err != nil || info == nil {
		if h, herr := os.Hostname(); herr == nil {
			return h
		}
		return "unknown host"
	}
	return fmt.Sprintf("%s (%s %s)", info.Hostname, info.Platform, info.PlatformVersion)
}
