package workflow_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

var timing = regexp.MustCompile(`\d+\.\d+ms`)

// assertDebugLog compares the text log of res with want, masking timings.
func assertDebugLog(t *testing.T, want string, res *workflow.Result) {
	t.Helper()
	assert.Equal(t, want, timing.ReplaceAllString(res.Debug(), "*"))
}

func emptyStep(desc string) workflow.Step {
	return workflow.Func(desc, func(context.Context, *workflow.Control, workflow.Container) error {
		return nil
	})
}

func step(desc string, fn func(ctl *workflow.Control, c workflow.Container) error) workflow.Step {
	return workflow.Func(desc, func(_ context.Context, ctl *workflow.Control, c workflow.Container) error {
		return fn(ctl, c)
	})
}

// failures lists the ways a step can fail with "Fail Message".
var failures = map[string]func(ctl *workflow.Control, c workflow.Container) error{
	"fail step":     func(ctl *workflow.Control, _ workflow.Container) error { return ctl.FailStep("Fail Message") },
	"fail workflow": func(ctl *workflow.Control, _ workflow.Container) error { return ctl.FailWorkflow("Fail Message") },
	"plain error":   func(*workflow.Control, workflow.Container) error { return errors.New("Fail Message") },
}

// recorder tracks which steps ran.
type recorder struct {
	ran []string
}

func (r *recorder) step(desc string) workflow.Step {
	return workflow.Func(desc, func(context.Context, *workflow.Control, workflow.Container) error {
		r.ran = append(r.ran, desc)
		return nil
	})
}
