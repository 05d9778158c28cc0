package sshpool

import (
	"bytes"
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// Session is an authenticated connection to one host that can run commands.
type Session interface {
	// Run executes command and returns its exit code and raw stdout. The exit
	// code is -1 when the remote side closed without reporting a status.
	Run(ctx context.Context, command string) (int, string, error)
	Close() error
}

// DialFunc opens an authenticated session to addr using config. The pool
// calls it once per authentication attempt.
type DialFunc func(ctx context.Context, addr string, config *ssh.ClientConfig) (Session, error)

// Dial is the default DialFunc: a TCP connection followed by an SSH
// handshake, both bounded by ctx and config.Timeout.
func Dial(ctx context.Context, addr string, config *ssh.ClientConfig) (Session, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(config.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if config.Timeout > 0 {
		_ = conn.SetDeadline(deadline)
	}

	// The handshake does not watch ctx, so closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if !stop() {
		if err == nil {
			c.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return &clientSession{client: ssh.NewClient(c, chans, reqs)}, nil
}

type clientSession struct {
	client *ssh.Client
}

func (s *clientSession) Run(ctx context.Context, command string) (int, string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return -1, "", err
	}
	defer sess.Close()

	var stdout bytes.Buffer
	sess.Stdout = &stdout

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case err := <-done:
		return exitStatus(err, stdout.String())
	case <-ctx.Done():
		// A command that outlived its bound leaves the connection in an
		// unknown state. Closing the client unblocks the pending Run.
		s.client.Close()
		<-done
		return -1, "", ctx.Err()
	}
}

func (s *clientSession) Close() error {
	return s.client.Close()
}

func exitStatus(err error, stdout string) (int, string, error) {
	if err == nil {
		return 0, stdout, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), stdout, nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return -1, stdout, nil
	}
	return -1, stdout, err
}
