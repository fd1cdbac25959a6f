// Package ssh implements the remote command executor.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/felden/docker-manager/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Service defines the interface for remote command execution.
type Service interface {
	Dial(ctx context.Context, host models.HostConfig, settings models.SSHSettings) (Session, error)
	TestConnection(ctx context.Context, host models.HostConfig, settings models.SSHSettings) (*models.ExecutionOutcome, error)
}

// Session is one logical remote session on a host. Commands run through it
// sequentially; Close releases the underlying connection.
type Session interface {
	Run(ctx context.Context, command string, timeout time.Duration) (*models.ExecutionOutcome, error)
	Close() error
}

// Client wraps ssh.Client for mocking.
type Client interface {
	NewSession() (RawSession, error)
	Close() error
}

// RawSession wraps ssh.Session for mocking.
type RawSession interface {
	Run(cmd string, stdout, stderr io.Writer) error
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (Client, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (Client, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultClient{client: client}, nil
}

type defaultClient struct {
	client *ssh.Client
}

func (c *defaultClient) NewSession() (RawSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultRawSession{session: session}, nil
}

func (c *defaultClient) Close() error {
	return c.client.Close()
}

type defaultRawSession struct {
	session *ssh.Session
}

func (s *defaultRawSession) Run(cmd string, stdout, stderr io.Writer) error {
	s.session.Stdout = stdout
	s.session.Stderr = stderr
	return s.session.Run(cmd)
}

func (s *defaultRawSession) Close() error {
	return s.session.Close()
}

// Impl implements the executor Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new executor service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new executor service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

func buildConfig(settings models.SSHSettings) (*ssh.ClientConfig, error) {
	key := settings.PrivateKey
	if len(key) == 0 {
		if settings.KeyPath == "" {
			return nil, fmt.Errorf("no private key provided")
		}
		var err error
		key, err = os.ReadFile(settings.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", settings.KeyPath, err)
		}
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &ssh.ClientConfig{
		User: settings.Username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // homelab environment
		Timeout:         settings.ConnectTimeout,
	}, nil
}

// Dial establishes the host's session. A failure here is a connectivity
// error: the host is unreachable and all of its items should fail.
func (s *Impl) Dial(ctx context.Context, host models.HostConfig, settings models.SSHSettings) (Session, error) {
	sshConfig, err := buildConfig(settings)
	if err != nil {
		return nil, &models.ConnectivityError{Host: host.Name, Err: err}
	}

	addr := net.JoinHostPort(host.Address, strconv.Itoa(settings.Port))

	s.logger.Debug().
		Str("host", host.Name).
		Str("addr", addr).
		Msg("dialing host")

	clientChan := make(chan struct {
		client Client
		err    error
	}, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- struct {
			client Client
			err    error
		}{client, err}
	}()

	select {
	case <-ctx.Done():
		return nil, &models.ConnectivityError{Host: host.Name, Err: ctx.Err()}
	case res := <-clientChan:
		if res.err != nil {
			return nil, &models.ConnectivityError{Host: host.Name, Err: res.err}
		}
		return &hostSession{client: res.client, host: host.Name, logger: s.logger}, nil
	}
}

// TestConnection dials the host and runs a trivial command.
func (s *Impl) TestConnection(ctx context.Context, host models.HostConfig, settings models.SSHSettings) (*models.ExecutionOutcome, error) {
	session, err := s.Dial(ctx, host, settings)
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close() }()

	return session.Run(ctx, `echo "SSH OK"`, 10*time.Second)
}

type hostSession struct {
	client Client
	host   string
	logger zerolog.Logger
}

// Run executes one command and captures its outcome. A nonzero exit code is
// not an error return: it is surfaced in the outcome for the caller to judge.
// The error return is reserved for transport-level failures.
func (s *hostSession) Run(ctx context.Context, command string, timeout time.Duration) (*models.ExecutionOutcome, error) {
	raw, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("creating session on %s: %w", s.host, err)
	}
	defer func() { _ = raw.Close() }()

	var stdout, stderr bytes.Buffer
	start := time.Now()

	done := make(chan error, 1)
	go func() {
		done <- raw.Run(command, &stdout, &stderr)
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	outcome := &models.ExecutionOutcome{}

	select {
	case <-ctx.Done():
		_ = raw.Close()
		<-done
		return nil, ctx.Err()
	case <-timer:
		// Tear down the channel; the remote command may keep running.
		_ = raw.Close()
		<-done
		outcome.TimedOut = true
		outcome.ExitCode = -1
	case err = <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				outcome.ExitCode = exitErr.ExitStatus()
			} else {
				return nil, fmt.Errorf("running command on %s: %w", s.host, err)
			}
		}
	}

	outcome.Stdout = stdout.String()
	outcome.Stderr = stderr.String()
	outcome.Duration = time.Since(start)

	s.logger.Debug().
		Str("host", s.host).
		Str("command", command).
		Int("exit_code", outcome.ExitCode).
		Bool("timed_out", outcome.TimedOut).
		Dur("duration", outcome.Duration).
		Msg("command completed")

	return outcome, nil
}

func (s *hostSession) Close() error {
	return s.client.Close()
}

// CheckOutcome converts a failed outcome into its error kind: TimeoutError
// when the command did not finish, CommandError on a nonzero exit, nil on
// success.
func CheckOutcome(command string, timeout time.Duration, outcome *models.ExecutionOutcome) error {
	if outcome.TimedOut {
		return &models.TimeoutError{Command: command, Timeout: timeout}
	}
	if outcome.ExitCode != 0 {
		return &models.CommandError{
			Command:  command,
			ExitCode: outcome.ExitCode,
			Stderr:   strings.TrimSpace(outcome.Stderr),
		}
	}
	return nil
}
