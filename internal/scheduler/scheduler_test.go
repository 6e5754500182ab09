package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olegiv/visitrack/internal/testutil"
)

func TestNew(t *testing.T) {
	s := New(testutil.TestLoggerSilent(), nil)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cron == nil {
		t.Error("New() scheduler has nil cron")
	}
	if len(s.List()) != 0 {
		t.Error("new scheduler should have no jobs")
	}
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(testutil.TestLoggerSilent(), time.UTC)
	noop := func(context.Context) error { return nil }

	if err := s.AddJob("retention", "30 0 * * *", time.Minute, noop); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if err := s.AddJob("retention", "0 * * * *", time.Minute, noop); err == nil {
		t.Error("AddJob() should reject a duplicate name")
	}
	if err := s.AddJob("broken", "every night", time.Minute, noop); err == nil {
		t.Error("AddJob() should reject an invalid schedule")
	}

	jobs := s.List()
	if len(jobs) != 1 {
		t.Fatalf("List() len = %d, want 1", len(jobs))
	}
	if jobs[0].Name != "retention" || jobs[0].Schedule != "30 0 * * *" {
		t.Errorf("List()[0] = %+v", jobs[0])
	}
}

func TestScheduler_TriggerRecordsOutcome(t *testing.T) {
	s := New(testutil.TestLoggerSilent(), time.UTC)
	boom := errors.New("store unavailable")

	var calls atomic.Int32
	fail := true
	err := s.AddJob("geoip-reload", "0 * * * *", time.Second, func(ctx context.Context) error {
		calls.Add(1)
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context should carry the timeout")
		}
		if fail {
			return boom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	if err := s.Trigger("geoip-reload"); !errors.Is(err, boom) {
		t.Errorf("Trigger() error = %v, want %v", err, boom)
	}
	jobs := s.List()
	if jobs[0].LastRun.IsZero() || jobs[0].LastError != boom.Error() {
		t.Errorf("after failure: %+v", jobs[0])
	}

	fail = false
	if err := s.Trigger("geoip-reload"); err != nil {
		t.Errorf("Trigger() error = %v", err)
	}
	if jobs := s.List(); jobs[0].LastError != "" {
		t.Errorf("LastError = %q after success", jobs[0].LastError)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestScheduler_TriggerUnknown(t *testing.T) {
	s := New(testutil.TestLoggerSilent(), time.UTC)
	if err := s.Trigger("missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Trigger() error = %v, want ErrUnknownJob", err)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(testutil.TestLoggerSilent(), time.UTC)
	if err := s.AddJob("noop", "* * * * *", 0, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	s.Start()
	if next := s.List()[0].NextRun; next.IsZero() {
		t.Error("NextRun should be set once started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
