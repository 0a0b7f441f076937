// Package runner wraps external command execution behind an interface
// so pipelines that drive xtrabackup, mysqlbinlog, and mysql can be
// tested without the tools installed.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Result holds the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands. A non-zero exit status is not an
// error: it is reported through Result.ExitCode so callers can apply
// their own severity rules.
type Runner interface {
	// Run executes the command and captures both output streams.
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// RunStdoutFile executes the command with stdout streamed to the
	// file at outPath. Stderr is captured in the Result.
	RunStdoutFile(ctx context.Context, outPath, name string, args ...string) (Result, error)

	// RunStdinFile executes the command with stdin read from the file
	// at inPath.
	RunStdinFile(ctx context.Context, inPath, name string, args ...string) (Result, error)

	// LookPath reports whether name resolves to an executable.
	LookPath(name string) (string, error)
}

// System returns a Runner backed by os/exec.
func System() Runner {
	return systemRunner{}
}

type systemRunner struct{}

func (systemRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return finish(stdout.String(), stderr.String(), err)
}

func (systemRunner) RunStdoutFile(ctx context.Context, outPath, name string, args ...string) (Result, error) {
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("opening %s: %w", outPath, err)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = out
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	return finish("", stderr.String(), runErr)
}

func (systemRunner) RunStdinFile(ctx context.Context, inPath, name string, args ...string) (Result, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return Result{}, fmt.Errorf("opening %s: %w", inPath, err)
	}
	defer in.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = in
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	return finish(stdout.String(), stderr.String(), runErr)
}

func (systemRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func finish(stdout, stderr string, err error) (Result, error) {
	res := Result{Stdout: stdout, Stderr: stderr}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}
