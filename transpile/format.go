package transpile

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Formatter reformats generated Python source.
type Formatter interface {
	Format(ctx context.Context, src string) (string, error)
}

// CommandFormatter pipes source through an external formatter that reads
// stdin and writes stdout.
type CommandFormatter struct {
	Command string
	Args    []string
}

// Black returns a formatter running `black -q -`.
func Black() *CommandFormatter {
	return &CommandFormatter{Command: "black", Args: []string{"-q", "-"}}
}

// Format runs the command with src on stdin.
func (f *CommandFormatter) Format(ctx context.Context, src string) (string, error) {
	cmd := exec.CommandContext(ctx, f.Command, f.Args...)
	cmd.Stdin = strings.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", f.Command, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func runFormatter(r *Run, text string) (string, []Fragment, error) {
	f := r.opts.Formatter
	if f == nil {
		f = Black()
	}
	out, err := f.Format(r.ctx, text)
	if err != nil {
		return "", nil, err
	}
	return out, nil, nil
}
