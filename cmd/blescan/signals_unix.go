//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// controlSignals returns channels for SIGUSR1 (export now) and SIGUSR2
// (clear the device table).
func controlSignals() (exportNow, clearNow chan os.Signal) {
	exportNow = make(chan os.Signal, 1)
	clearNow = make(chan os.Signal, 1)
	signal.Notify(exportNow, syscall.SIGUSR1)
	signal.Notify(clearNow, syscall.SIGUSR2)
	return exportNow, clearNow
}
