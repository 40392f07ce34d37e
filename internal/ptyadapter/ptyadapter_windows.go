//go:build windows

package ptyadapter

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/x/conpty"
	"golang.org/x/sys/windows"
)

type windowsPTY struct {
	cpty    *conpty.ConPty
	process windows.Handle
	done    chan struct{}

	mu       sync.Mutex
	exitCode int
	closed   bool
}

func spawn(size Size, argv []string, env []string, dir string) (PTY, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("ptyadapter: empty argv")
	}

	cpty, err := conpty.New(int(size.Cols), int(size.Rows), 0)
	if err != nil {
		return nil, fmt.Errorf("ptyadapter: new conpty: %w", err)
	}

	_, handle, err := cpty.Spawn(argv[0], argv[1:], &syscall.ProcAttr{Env: env, Dir: dir})
	if err != nil {
		cpty.Close()
		return nil, fmt.Errorf("ptyadapter: spawn: %w", err)
	}

	p := &windowsPTY{
		cpty:     cpty,
		process:  windows.Handle(handle),
		done:     make(chan struct{}),
		exitCode: -1,
	}

	go func() {
		windows.WaitForSingleObject(p.process, windows.INFINITE)
		p.mu.Lock()
		var code uint32
		if err := windows.GetExitCodeProcess(p.process, &code); err == nil {
			p.exitCode = int(code)
		}
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

func (p *windowsPTY) Read(b []byte) (int, error)  { return p.cpty.Read(b) }
func (p *windowsPTY) Write(b []byte) (int, error) { return p.cpty.Write(b) }

func (p *windowsPTY) Resize(size Size) error {
	return p.cpty.Resize(int(size.Cols), int(size.Rows))
}

// Signal terminates the process; Windows has no SIGHUP equivalent for
// console processes, so a graceful shutdown degrades to termination.
func (p *windowsPTY) Signal() error {
	return windows.TerminateProcess(p.process, 1)
}

func (p *windowsPTY) Wait() int {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *windowsPTY) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cpty.Close()

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		windows.TerminateProcess(p.process, 1)
		<-p.done
	}
	windows.CloseHandle(p.process)
	return nil
}
