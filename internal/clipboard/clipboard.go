// Package clipboard copies text to the system clipboard via platform
// commands (pbcopy, wl-copy, xclip, xsel). Shelling out keeps the binary
// free of display-server linkage and matches what users already have
// installed.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("no clipboard command available")

const copyTimeout = 4 * time.Second

type commandSpec struct {
	name string
	args []string
	// detached commands (xclip, xsel) own the X selection and must
	// outlive this process, so they are fired without waiting.
	detached bool
}

// Copy places value on the system clipboard.
func Copy(ctx context.Context, value string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	spec, err := detectCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}

	if spec.detached {
		return copyDetached(spec, value)
	}

	copyCtx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	cmd := exec.CommandContext(copyCtx, spec.name, spec.args...)
	cmd.Stdin = strings.NewReader(value)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if runErr := cmd.Run(); runErr != nil {
		if errors.Is(copyCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("copy to clipboard timed out: %w", copyCtx.Err())
		}
		return fmt.Errorf("copy to clipboard: %w", runErr)
	}

	return nil
}

func detectCommand(goos string, lookPath func(string) (string, error)) (commandSpec, error) {
	if goos == "darwin" {
		if _, err := lookPath("pbcopy"); err == nil {
			return commandSpec{name: "pbcopy"}, nil
		}
		return commandSpec{}, ErrUnavailable
	}

	if _, err := lookPath("wl-copy"); err == nil {
		return commandSpec{name: "wl-copy"}, nil
	}

	if _, err := lookPath("xclip"); err == nil {
		return commandSpec{name: "xclip", args: []string{"-selection", "clipboard", "-in", "-silent"}, detached: true}, nil
	}

	if _, err := lookPath("xsel"); err == nil {
		return commandSpec{name: "xsel", args: []string{"--clipboard", "--input"}, detached: true}, nil
	}

	return commandSpec{}, ErrUnavailable
}

func copyDetached(spec commandSpec, value string) error {
	cmd := exec.Command(spec.name, spec.args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open clipboard stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start clipboard command: %w", err)
	}

	if _, err := io.WriteString(stdin, value); err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		return fmt.Errorf("write clipboard data: %w", err)
	}

	if err := stdin.Close(); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("close clipboard stdin: %w", err)
	}

	_ = cmd.Process.Release()
	return nil
}
