package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Local implements Sandbox over a directory on the host filesystem.
type Local struct {
	root string
}

// NewLocal creates a local sandbox rooted at dir. The directory is created
// if it does not exist.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute sandbox root directory.
func (l *Local) Root() string {
	return l.root
}

// resolve maps a sandbox-relative path to an absolute host path, rejecting
// paths that escape the root.
func (l *Local) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	if cleaned == "/" {
		return l.root, nil
	}
	abs := filepath.Join(l.root, cleaned)
	if !strings.HasPrefix(abs, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox root: %s", path)
	}
	return abs, nil
}

// WriteFile writes content to a sandbox-relative path.
func (l *Local) WriteFile(_ context.Context, path, content string) error {
	abs, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ReadFile reads a sandbox-relative path.
func (l *Local) ReadFile(_ context.Context, path string) (string, error) {
	abs, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// MkdirAll creates a sandbox-relative directory and its parents.
func (l *Local) MkdirAll(_ context.Context, path string) error {
	abs, err := l.resolve(path)
	if err != nil {
		return err
	}
	if abs == l.root {
		return nil
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// Spawn starts a process with the sandbox root as working directory.
func (l *Local) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = l.root

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	p := &localProcess{cmd: cmd, out: pr, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		if exitErr, ok := err.(*exec.ExitError); ok {
			p.exitCode = exitErr.ExitCode()
		} else if err != nil {
			p.waitErr = err
		}
		close(p.done)
	}()

	return p, nil
}

type localProcess struct {
	cmd      *exec.Cmd
	out      io.Reader
	done     chan struct{}
	exitCode int
	waitErr  error
}

func (p *localProcess) Output() io.Reader {
	return p.out
}

func (p *localProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.exitCode, p.waitErr
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		return -1, ctx.Err()
	}
}

// LocalShell implements Shell by running each submitted command through a
// host shell with the sandbox root as working directory. It is always ready.
type LocalShell struct {
	// Program is the shell binary, defaulting to /bin/sh.
	Program string

	// Dir is the working directory for executed commands.
	Dir string

	// CommandTimeout bounds a single command; zero means no limit.
	CommandTimeout time.Duration
}

// NewLocalShell creates a shell session executing in dir.
func NewLocalShell(dir string) *LocalShell {
	return &LocalShell{Program: "/bin/sh", Dir: dir}
}

// Ready reports the session as ready unless the context is done.
func (s *LocalShell) Ready(ctx context.Context) error {
	return ctx.Err()
}

// Execute runs command text through the shell and captures combined output.
func (s *LocalShell) Execute(ctx context.Context, _ string, command string, _ func()) (CommandResult, error) {
	program := s.Program
	if program == "" {
		program = "/bin/sh"
	}

	if s.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CommandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, program, "-c", command)
	cmd.Dir = s.Dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	result := CommandResult{Output: buf.String()}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to execute command: %w", err)
	}

	return result, nil
}
