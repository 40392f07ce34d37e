//go:build windows

package main

import "github.com/shi-yan/kerr/internal/session/shell"

// watchResize is a no-op on Windows: there is no SIGWINCH equivalent
// wired up here, so the terminal size sent at session start stands.
func watchResize(fd int, resizes chan shell.Size) {}
