package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// InterruptExitCode is the exit status of a tool that was stopped with SIGINT
// (Ctrl-C, or our own cancellation which signals the process group).
const InterruptExitCode = 128 + int(syscall.SIGINT)

// signal escalation delay on cancel: SIGINT, then SIGTERM, then SIGKILL.
const killGrace = 3 * time.Second

type CmdSpec struct {
	Path string
	Args []string
	Dir  string
	Env  map[string]string

	// StdinFile, when set, is opened and connected to the tool's stdin.
	StdinFile string
}

func (s CmdSpec) String() string {
	return formatCmd(s.Path, s.Args)
}

// CmdOutput is the fully captured result of a tool invocation.
// Err is only set when the tool could not be started or the context ended;
// a non-zero exit status alone is reported through ExitCode.
type CmdOutput struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	Err      error
}

func (o CmdOutput) Success() bool {
	return o.Err == nil && o.ExitCode == 0
}

// Interrupted reports whether the tool was stopped by SIGINT.
func (o CmdOutput) Interrupted() bool {
	return o.ExitCode == InterruptExitCode || errors.Is(o.Err, context.Canceled)
}

// ErrorDetail returns the captured stderr, or the launch error when nothing was captured.
func (o CmdOutput) ErrorDetail() string {
	if s := strings.TrimSpace(string(o.Stderr)); s != "" {
		return s
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return fmt.Sprintf("exit status %d", o.ExitCode)
}

// Runner runs external tools. Tests substitute a scripted implementation.
type Runner interface {
	Run(ctx context.Context, spec CmdSpec) CmdOutput
}

// ExecRunner runs tools as real subprocesses.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, spec CmdSpec) CmdOutput {
	var stdout, stderr bytes.Buffer
	start := time.Now()
	code, err := execute(ctx, spec, &stdout, &stderr)
	out := CmdOutput{
		ExitCode: code,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	var ee *exec.ExitError
	if err != nil && !errors.As(err, &ee) {
		out.Err = err
	}
	return out
}

// execute starts the tool in its own process group and drains stdout and
// stderr concurrently until both are closed and the process has exited.
func execute(ctx context.Context, spec CmdSpec, stdoutW, stderrW io.Writer) (int, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	cmd.Env = mergeEnv(os.Environ(), spec.Env)

	// Ensure we can signal the whole process group on cancel (macOS/Linux).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if spec.StdinFile != "" {
		f, err := os.Open(spec.StdinFile)
		if err != nil {
			return -1, fmt.Errorf("open stdin file: %w", err)
		}
		defer f.Close()
		cmd.Stdin = f
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}

	if err := ctx.Err(); err != nil {
		return -1, err
	}
	if err := cmd.Start(); err != nil {
		return -1, err
	}
	pid := cmd.Process.Pid

	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go func() {
		defer close(stdoutDone)
		_, _ = io.Copy(stdoutW, stdout)
	}()
	go func() {
		defer close(stderrDone)
		_, _ = io.Copy(stderrW, stderr)
	}()

	waitDone := make(chan error, 1)
	go func() {
		// Wait closes the pipes, so the drains must finish first.
		<-stdoutDone
		<-stderrDone
		waitDone <- cmd.Wait()
	}()

	select {
	case err := <-waitDone:
		return exitCodeFromErr(err), err
	case <-ctx.Done():
	}

	for _, sig := range []syscall.Signal{syscall.SIGINT, syscall.SIGTERM} {
		_ = syscall.Kill(-pid, sig)
		select {
		case err := <-waitDone:
			return exitCodeFromErr(err), ctx.Err()
		case <-time.After(killGrace):
		}
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	err = <-waitDone
	return exitCodeFromErr(err), ctx.Err()
}

func exitCodeFromErr(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		// On Unix this is syscall.WaitStatus.
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return 128 + int(ws.Signal())
			}
			return ws.ExitStatus()
		}
		return ee.ExitCode()
	}
	return 1
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	m := map[string]string{}
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	for k, v := range extra {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func formatCmd(path string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, path)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			parts = append(parts, fmt.Sprintf("%q", a))
			continue
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
