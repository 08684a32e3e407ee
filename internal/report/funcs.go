package report

import (
	"html/template"
	"time"

	"github.com/vesaa/tsmreport/internal/parsing"
)

var funcs = template.FuncMap{
	"count":   parsing.FormatCount,
	"size":    parsing.FormatSize,
	"bytes":   func(n int64, u parsing.Unit) string { return parsing.FormatSize(float64(n), u) },
	"elapsed": parsing.FormatElapsed,
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(DisplayTimeLayout)
	},
	"status":       Status,
	"outcomeClass": outcomeClass,
	"outcomeMark":  outcomeMark,
}

// outcomeClass maps an outcome to a table cell CSS class.
func outcomeClass(o parsing.Outcome) string {
	switch o {
	case parsing.OutcomeSuccessful:
		return "ok"
	case parsing.OutcomeUnknown:
		return "none"
	case parsing.OutcomeStarted, parsing.OutcomeInProgress, parsing.OutcomePending, parsing.OutcomeRestarted:
		return "warn"
	}
	return "bad"
}

// outcomeMark is the one-character history cell text.
func outcomeMark(o parsing.Outcome) string {
	switch o {
	case parsing.OutcomeSuccessful:
		return "+"
	case parsing.OutcomeUnknown:
		return "."
	case parsing.OutcomeStarted, parsing.OutcomeInProgress, parsing.OutcomePending, parsing.OutcomeRestarted:
		return "~"
	}
	return "x"
}
