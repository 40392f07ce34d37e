//go:build !windows

package ptyadapter

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

type unixPTY struct {
	ptmx *os.File
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exitCode int
	closed   bool
}

func spawn(size Size, argv []string, env []string, dir string) (PTY, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("ptyadapter: empty argv")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Dir = dir

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: size.Cols, Rows: size.Rows})
	if err != nil {
		return nil, fmt.Errorf("ptyadapter: start: %w", err)
	}

	p := &unixPTY{
		ptmx:     ptmx,
		cmd:      cmd,
		done:     make(chan struct{}),
		exitCode: -1,
	}

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if exitErr, ok := err.(*exec.ExitError); ok {
			p.exitCode = exitErr.ExitCode()
		} else if err == nil {
			p.exitCode = 0
		}
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

func (p *unixPTY) Read(b []byte) (int, error)  { return p.ptmx.Read(b) }
func (p *unixPTY) Write(b []byte) (int, error) { return p.ptmx.Write(b) }

func (p *unixPTY) Resize(size Size) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: size.Cols, Rows: size.Rows})
}

func (p *unixPTY) Signal() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd.Process == nil {
		return fmt.Errorf("ptyadapter: no process")
	}
	return p.cmd.Process.Signal(syscall.SIGHUP)
}

func (p *unixPTY) Wait() int {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *unixPTY) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.ptmx.Close()

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		<-p.done
	}
	return nil
}
