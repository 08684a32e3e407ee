// Package collector queries the backup server's admin console and gathers
// the raw record sets the parsing package works on.
package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTransport marks failures to reach or run the admin console. They abort
// the collection of the affected instance.
var ErrTransport = errors.New("admin console transport error")

// noMatchCode is printed by the server when a query matched nothing.
const noMatchCode = "ANR2034E"

// Executor runs one admin console query. An empty result is (nil, nil).
type Executor interface {
	Query(ctx context.Context, query string) ([]byte, error)
}

// Dsmadmc describes how to invoke the admin console for one instance.
type Dsmadmc struct {
	Path     string
	Instance string
	User     string
	Password string
	Timeout  time.Duration
}

// Args returns the command line arguments for query.
func (d Dsmadmc) Args(query string) []string {
	return []string{
		"-se=" + d.Instance,
		"-id=" + d.User,
		"-password=" + strings.TrimRight(d.Password, "\r\n"),
		"-dataonly=yes",
		"-comma",
		query,
	}
}

// classify maps a failed console run to an empty result or ErrTransport.
func classify(query string, stdout, stderr []byte, runErr error) ([]byte, error) {
	if bytes.Contains(stdout, []byte(noMatchCode)) || bytes.Contains(stderr, []byte(noMatchCode)) {
		return nil, nil
	}
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = strings.TrimSpace(string(stdout))
	}
	return nil, fmt.Errorf("%w: %q: %v: %s", ErrTransport, query, runErr, msg)
}

// LocalExecutor runs dsmadmc on this host.
type LocalExecutor struct {
	Dsmadmc
}

// Query runs the console with a per-query timeout.
func (e *LocalExecutor) Query(ctx context.Context, query string) ([]byte, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Path, e.Args(query)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return classify(query, stdout.Bytes(), stderr.Bytes(), err)
	}
	return stdout.Bytes(), nil
}

// splitLines turns console output into non-blank lines.
func splitLines(out []byte) []string {
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
