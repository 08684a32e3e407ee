package collector

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHClient wraps an authenticated SSH connection to the admin host.
type SSHClient struct {
	client *ssh.Client
	host   string
}

// NewSSHClient dials the target host with password or key authentication.
func NewSSHClient(host, user, password, keyPEM string) (*SSHClient, error) {
	var authMethods []ssh.AuthMethod

	if keyPEM != "" {
		signer, err := ssh.ParsePrivateKey([]byte(keyPEM))
		if err != nil {
			return nil, fmt.Errorf("parsing SSH key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if password != "" {
		authMethods = append(authMethods, ssh.Password(password))
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: verify against known_hosts
		Timeout:         15 * time.Second,
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: SSH dial %s: %v", ErrTransport, addr, err)
	}
	return &SSHClient{client: client, host: host}, nil
}

// DialSSH reads the key file, if any, and connects.
func DialSSH(host, user, password, keyPath string) (*SSHClient, error) {
	var keyPEM string
	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading SSH key: %w", err)
		}
		keyPEM = string(data)
	}
	return NewSSHClient(host, user, password, keyPEM)
}

// Close cleanly shuts down the SSH connection.
func (s *SSHClient) Close() error { return s.client.Close() }

// Run executes a command and returns stdout and stderr separately. The
// session is closed when ctx is done.
func (s *SSHClient) Run(ctx context.Context, cmd string) (stdout, stderr []byte, err error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: new session on %s: %v", ErrTransport, s.host, err)
	}
	defer sess.Close()

	var outBuf, errBuf bytes.Buffer
	sess.Stdout = &outBuf
	sess.Stderr = &errBuf

	err = runSession(ctx, sess, cmd)
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// session is the part of *ssh.Session that runSession drives.
type session interface {
	Run(cmd string) error
	Signal(sig ssh.Signal) error
	Close() error
}

// runSession runs cmd on sess and kills it when ctx is done. It returns
// only after sess.Run has returned, so the session's output writers are
// idle once it does.
func runSession(ctx context.Context, sess session, cmd string) error {
	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		<-done
		return ctx.Err()
	}
}

// SSHExecutor runs dsmadmc on a remote admin host.
type SSHExecutor struct {
	Dsmadmc
	Client *SSHClient
}

// Query runs the console remotely with a per-query timeout.
func (e *SSHExecutor) Query(ctx context.Context, query string) ([]byte, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	stdout, stderr, err := e.Client.Run(ctx, e.CommandLine(query))
	if err != nil {
		return classify(query, stdout, stderr, err)
	}
	return stdout, nil
}

// CommandLine renders the console invocation for a POSIX shell.
func (d Dsmadmc) CommandLine(query string) string {
	parts := []string{shellQuote(d.Path)}
	for _, a := range d.Args(query) {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
