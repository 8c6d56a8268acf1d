package channel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const sessionName = "gantry"

// SSHChannel reaches environments over SSH and keeps commands alive in
// a tmux session on the remote side. Clients are pooled per env
// handle; a dead pooled connection is invalidated and redialed once
// before the error surfaces.
type SSHChannel struct {
	user        string
	auth        []ssh.AuthMethod
	dialTimeout time.Duration

	mu      sync.Mutex
	clients map[string]*ssh.Client
}

func NewSSHChannel(user, keyPath string) (*SSHChannel, error) {
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	return &SSHChannel{
		user:        user,
		auth:        []ssh.AuthMethod{ssh.PublicKeys(signer)},
		dialTimeout: 10 * time.Second,
		clients:     make(map[string]*ssh.Client),
	}, nil
}

func (c *SSHChannel) client(envHandle string) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cli, ok := c.clients[envHandle]; ok {
		return cli, nil
	}

	addr := envHandle
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}
	config := &ssh.ClientConfig{
		User:            c.user,
		Auth:            c.auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.dialTimeout,
	}
	cli, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.clients[envHandle] = cli
	return cli, nil
}

// invalidate drops a pooled client that turned out to be dead.
func (c *SSHChannel) invalidate(envHandle string, cli *ssh.Client) {
	c.mu.Lock()
	if c.clients[envHandle] == cli {
		delete(c.clients, envHandle)
	}
	c.mu.Unlock()
	cli.Close()
}

func (c *SSHChannel) EnsureSession(ctx context.Context, envHandle string) error {
	ensure := fmt.Sprintf("tmux has-session -t %s 2>/dev/null || tmux new-session -d -s %s", sessionName, sessionName)
	_, err := c.RunCommand(ctx, envHandle, ensure, nil)
	return err
}

func (c *SSHChannel) RunCommand(ctx context.Context, envHandle, command string, onOutput func(chunk []byte)) (int, error) {
	code, err := c.runOnce(ctx, envHandle, command, onOutput)
	if err == nil || ctx.Err() != nil {
		return code, err
	}
	// The pooled connection may have gone stale; retry once on a fresh
	// one before surfacing the error.
	return c.runOnce(ctx, envHandle, command, onOutput)
}

func (c *SSHChannel) runOnce(ctx context.Context, envHandle, command string, onOutput func(chunk []byte)) (int, error) {
	cli, err := c.client(envHandle)
	if err != nil {
		return -1, err
	}

	session, err := cli.NewSession()
	if err != nil {
		c.invalidate(envHandle, cli)
		return -1, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	out := outputWriter{fn: onOutput}
	session.Stdout = out
	session.Stderr = out

	if err := session.Start(command); err != nil {
		c.invalidate(envHandle, cli)
		return -1, fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		// Best effort: the remote command may keep running after this.
		session.Signal(ssh.SIGKILL)
		session.Close()
		return -1, ctx.Err()
	case err := <-done:
		if err == nil {
			return 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		c.invalidate(envHandle, cli)
		return -1, err
	}
}
