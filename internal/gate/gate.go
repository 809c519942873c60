// ABOUTME: BiometricGate implementations for protected credential reads
// ABOUTME: Static gate for headless use, terminal gate for interactive approval

package gate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrDenied is returned by Evaluate when the user declines or cancels.
var ErrDenied = errors.New("approval denied")

// Static is a gate with a fixed answer. Useful for tests and headless
// environments where no user-presence check is possible.
type Static struct {
	Allow bool
}

func (g Static) Available(ctx context.Context) bool { return true }

func (g Static) Evaluate(ctx context.Context, reason string) error {
	if g.Allow {
		return nil
	}
	return ErrDenied
}

// Terminal asks the user for confirmation on the terminal. It stands in for
// a platform biometric prompt: the call blocks on user presence, and
// anything other than an explicit yes is a denial.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

func (g *Terminal) Available(ctx context.Context) bool {
	return g.In != nil && g.Out != nil
}

func (g *Terminal) Evaluate(ctx context.Context, reason string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}

	fmt.Fprintf(g.Out, "%s %s [y/N]: ", color.YellowString("confirm access:"), reason)

	line, err := bufio.NewReader(g.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: reading response: %v", ErrDenied, err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return ErrDenied
}
