package main

import (
	"errors"
	"strings"
	"testing"
)

func TestScheduleFor(t *testing.T) {
	def := mustDefinition(t, "name: s\nschedule: '@hourly'\nprocess: [{kind: info, with: {message: x}}]\n")

	if _, err := scheduleFor("", def); err != nil {
		t.Errorf("definition schedule: %v", err)
	}
	if _, err := scheduleFor("*/5 * * * *", def); err != nil {
		t.Errorf("flag schedule: %v", err)
	}
	if _, err := scheduleFor("not a schedule", def); err == nil {
		t.Error("expected error for invalid flag")
	}

	def.Schedule = ""
	if _, err := scheduleFor("", def); !errors.Is(err, errNoSchedule) {
		t.Errorf("err = %v, want errNoSchedule", err)
	}
}

func TestScheduleCmd_RunsUntilLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron activation")
	}
	path := writeDefinition(t, greetWorkflow)
	out, err := execute(t, "schedule", path, "--cron", "@every 1s", "--max-runs", "1",
		"--set", "name=cron", "--set", "count=2")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !strings.Contains(out, "=== run 1 ===") || !strings.Contains(out, "Process log for workflow 'greet':") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "=== run 2 ===") {
		t.Errorf("ran past the limit:\n%s", out)
	}
}

func TestScheduleCmd_NoSchedule(t *testing.T) {
	path := writeDefinition(t, greetWorkflow)
	if _, err := execute(t, "schedule", path); !errors.Is(err, errNoSchedule) {
		t.Fatalf("err = %v, want errNoSchedule", err)
	}
}
