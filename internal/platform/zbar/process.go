package zbar

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"scanbridge/internal/domain"
)

// drainTimeout bounds how long Stop waits for buffered output after exit.
const drainTimeout = 500 * time.Millisecond

// camProcess is one running zbarcam.
type camProcess struct {
	stdout *os.File
	stderr *lockedBuffer

	process *os.Process
	waitErr <-chan error

	readDone chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func startCamProcess(ctx context.Context, command string, args []string, grace time.Duration) (*camProcess, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	// stdout must stay readable after Wait returns.
	stdout, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create zbarcam stdout pipe: %w", err)
	}
	cmd.Stdout = writer
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("failed to start zbarcam: %w", err)
	}
	_ = writer.Close()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		_ = stdout.Close()
		detail := trimSpace(stderr.String())
		if isPermissionDenied(detail) {
			return nil, domain.NewScannerError(domain.ErrorCodePermissionDenied, detail)
		}
		if err != nil {
			return nil, fmt.Errorf("zbarcam exited before scanning started: %w: %s", err, detail)
		}
		return nil, errors.New("zbarcam exited before scanning started")
	case <-time.After(grace):
	}

	return &camProcess{
		stdout:   stdout,
		stderr:   stderr,
		process:  cmd.Process,
		waitErr:  waitErr,
		readDone: make(chan struct{}),
	}, nil
}

// readLines hands every non-empty stdout line to handle until EOF.
func (p *camProcess) readLines(handle func(line string)) {
	defer close(p.readDone)

	scanner := bufio.NewScanner(p.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		handle(line)
	}
}

func (p *camProcess) Stop() error {
	p.stopOnce.Do(func() {
		if p.process != nil {
			_ = p.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-p.waitErr:
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if p.process != nil {
				_ = p.process.Kill()
			}
			err, ok := <-p.waitErr
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		}

		// Let the reader drain what the process wrote before it exited.
		select {
		case <-p.readDone:
		case <-time.After(drainTimeout):
		}

		if closeErr := p.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if p.stopErr == nil {
				p.stopErr = closeErr
			}
		}
		<-p.readDone

		if p.stopErr != nil && p.stderr.Len() > 0 {
			p.stopErr = fmt.Errorf("%w: %s", p.stopErr, trimSpace(p.stderr.String()))
		}
	})

	return p.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func isPermissionDenied(detail string) bool {
	lower := strings.ToLower(detail)
	return strings.Contains(lower, "permission denied") || strings.Contains(lower, "eacces")
}

func trimSpace(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

// lockedBuffer lets the exec copier write stderr while Stop reads it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
