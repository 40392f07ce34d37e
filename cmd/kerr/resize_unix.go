//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/shi-yan/kerr/internal/session/shell"
)

// watchResize forwards SIGWINCH into resizes for the life of the process.
func watchResize(fd int, resizes chan shell.Size) {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			sendCurrentSize(fd, resizes)
		}
	}()
}
