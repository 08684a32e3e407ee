package mailer

import (
	"strings"
	"time"

	"github.com/vesaa/tsmreport/internal/report"
)

// SubjectVars are the placeholders of the subject template.
type SubjectVars struct {
	Status   string
	Instance string
	Group    string
	Time     time.Time
}

func (v SubjectVars) lookup(key string) (string, bool) {
	switch key {
	case "status":
		return v.Status, true
	case "tsm_inst":
		return v.Instance, true
	case "pd_name":
		return v.Group, true
	case "time":
		return v.Time.Format(report.DisplayTimeLayout), true
	}
	return "", false
}

// Subject expands $status, $tsm_inst, $pd_name and $time, bare or braced, in
// tmpl. Unknown placeholders are kept exactly as written and $$ yields a
// single dollar sign.
func Subject(tmpl string, v SubjectVars) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); {
		if tmpl[i] != '$' || i+1 == len(tmpl) {
			b.WriteByte(tmpl[i])
			i++
			continue
		}
		if tmpl[i+1] == '$' {
			b.WriteByte('$')
			i += 2
			continue
		}
		key, end := placeholder(tmpl[i+1:])
		if end == 0 {
			b.WriteByte('$')
			i++
			continue
		}
		if val, ok := v.lookup(key); ok {
			b.WriteString(val)
		} else {
			b.WriteString(tmpl[i : i+1+end])
		}
		i += 1 + end
	}
	return b.String()
}

// placeholder reads the name following a '$'. It returns the name and the
// number of bytes it spans, braces included, or 0 when s holds none.
func placeholder(s string) (string, int) {
	if s[0] == '{' {
		closing := strings.IndexByte(s, '}')
		if closing <= 1 {
			return "", 0
		}
		return s[1:closing], closing + 1
	}
	n := 0
	for n < len(s) && isNameByte(s[n]) {
		n++
	}
	return s[:n], n
}

func isNameByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
