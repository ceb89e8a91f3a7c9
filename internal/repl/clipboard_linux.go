//go:build linux

package repl

import "errors"

// errClipboardUnavailable is returned where the clipboard library cannot run headless.
var errClipboardUnavailable = errors.New("clipboard not available on this platform (Linux without X11)")

func writeToClipboard(string) error {
	return errClipboardUnavailable
}
