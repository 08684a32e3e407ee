// Package webui exposes the embedded HTML templates.
// It lives at the module root to embed the sibling "templates/" directory.
// internal/report parses them; internal/server serves what report renders.
package webui

import "embed"

// FS is the embedded templates directory.
//
//go:embed templates
var FS embed.FS

// Template file names inside FS.
const (
	ReportTemplate = "templates/report.html"
	IndexTemplate  = "templates/index.html"
)
