// Package output delivers a finished transcript to the user: clipboard,
// simulated paste into the focused window, and desktop notifications.
package output

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/micmonay/keybd_event"
	"go.uber.org/zap"

	"github.com/murmurvoice/murmur/internal/clipboard"
)

// keybd_event on Linux needs the virtual keyboard to register with the
// display server before the first synthetic keystroke is accepted.
const linuxKeyboardWarmup = 2 * time.Second

// Options selects which delivery channels run after transcription.
type Options struct {
	Copy   bool
	Paste  bool
	Notify bool
}

// Handler fans a transcript out to the configured channels. Channel
// failures are logged and reported but never abort the remaining
// channels, so a missing clipboard tool does not swallow the paste.
type Handler struct {
	opts   Options
	logger *zap.Logger

	copyFn   func(context.Context, string) error
	pasteFn  func() error
	notifyFn func(title, body string) error
}

func NewHandler(opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		opts:     opts,
		logger:   logger,
		copyFn:   clipboard.Copy,
		pasteFn:  simulatePaste,
		notifyFn: func(title, body string) error {
			return beeep.Notify(title, body, "")
		},
	}
}

// Deliver runs the enabled channels in order: copy, paste, notify.
// Paste depends on the clipboard, so a failed copy skips it.
func (h *Handler) Deliver(ctx context.Context, transcript string) error {
	if transcript == "" {
		return nil
	}

	var firstErr error

	copied := false
	if h.opts.Copy || h.opts.Paste {
		if err := h.copyFn(ctx, transcript); err != nil {
			h.logger.Warn("clipboard copy failed", zap.Error(err))
			firstErr = fmt.Errorf("copy transcript: %w", err)
		} else {
			copied = true
			h.logger.Debug("transcript copied to clipboard", zap.Int("chars", len(transcript)))
		}
	}

	if h.opts.Paste && copied {
		if err := h.pasteFn(); err != nil {
			h.logger.Warn("paste keystroke failed", zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("paste transcript: %w", err)
			}
		}
	}

	if h.opts.Notify {
		if err := h.notifyFn("murmur", notificationBody(transcript)); err != nil {
			h.logger.Debug("notification failed", zap.Error(err))
		}
	}

	return firstErr
}

func notificationBody(transcript string) string {
	const maxLen = 120
	if len(transcript) <= maxLen {
		return transcript
	}
	return transcript[:maxLen] + "…"
}

// simulatePaste sends the platform paste chord (Cmd+V on macOS, Ctrl+V
// elsewhere) to whatever window currently has focus.
func simulatePaste() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("init key bonding: %w", err)
	}

	if runtime.GOOS == "linux" {
		time.Sleep(linuxKeyboardWarmup)
	}

	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}

	if err := kb.Launching(); err != nil {
		return fmt.Errorf("send paste keystroke: %w", err)
	}
	return nil
}
