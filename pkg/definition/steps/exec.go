package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// newExec runs cmd through /bin/sh and stores its output. A non-zero exit
// fails the step unless fail_on_error is false.
func newExec(def definition.StepDef, b definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	cmdTpl, err := a.Template("cmd", "")
	if err != nil {
		return nil, err
	}
	workdir, err := a.Template("workdir", "")
	if err != nil {
		return nil, err
	}
	timeout, err := a.Duration("timeout", 0)
	if err != nil {
		return nil, err
	}
	stdoutKey, err := a.String("stdout_key", "stdout")
	if err != nil {
		return nil, err
	}
	stderrKey, err := a.String("stderr_key", "")
	if err != nil {
		return nil, err
	}
	exitCodeKey, err := a.String("exit_code_key", "")
	if err != nil {
		return nil, err
	}
	failOnError, err := a.Bool("fail_on_error", true)
	if err != nil {
		return nil, err
	}
	baseDir := b.BaseDir()

	return workflow.Func(describe(def, "Run "+cmdTpl.String()), func(ctx context.Context, ctl *workflow.Control, c workflow.Container) error {
		snap := c.Snapshot()
		command, err := cmdTpl.render(snap)
		if err != nil {
			return fmt.Errorf("exec: cmd template: %w", err)
		}
		dir, err := workdir.render(snap)
		if err != nil {
			return fmt.Errorf("exec: workdir template: %w", err)
		}
		if dir == "" {
			dir = baseDir
		} else {
			dir = resolvePath(baseDir, dir)
		}

		runCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
		cmd.Dir = dir
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()
		exitCode := 0
		if runErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(runErr, &exitErr) {
				return fmt.Errorf("exec: %w", runErr)
			}
			exitCode = exitErr.ExitCode()
		}

		c.Set(stdoutKey, stdout.String())
		if stderrKey != "" {
			c.Set(stderrKey, stderr.String())
		}
		if exitCodeKey != "" {
			c.Set(exitCodeKey, exitCode)
		}

		if exitCode != 0 && failOnError {
			msg := fmt.Sprintf("command exited with code %d", exitCode)
			if first := strings.SplitN(strings.TrimSpace(stderr.String()), "\n", 2)[0]; first != "" {
				msg += ": " + first
			}
			return ctl.FailStep(msg)
		}
		return nil
	}), nil
}
