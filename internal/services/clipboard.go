package services

import (
	"errors"

	"github.com/atotto/clipboard"
)

// ErrClipboardUnsupported is returned when the host has no clipboard utility available.
var ErrClipboardUnsupported = errors.New("clipboard is not supported on this host")

// SystemClipboard writes to the clipboard of the machine the server runs on.
type SystemClipboard struct{}

// WriteAll replaces the clipboard content with text.
func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	return clipboard.WriteAll(text)
}
