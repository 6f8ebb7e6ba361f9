//go:build !unix

package main

import "os"

// controlSignals returns channels that never fire on platforms without
// user signals.
func controlSignals() (exportNow, clearNow chan os.Signal) {
	return make(chan os.Signal), make(chan os.Signal)
}
