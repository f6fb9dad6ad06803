package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New("UTC", logrus.NewEntry(logrus.New()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}

func TestNewRejectsBadTimezone(t *testing.T) {
	if _, err := New("Mars/Olympus", logrus.NewEntry(logrus.New())); err == nil {
		t.Fatal("bad timezone should fail")
	}
}

func TestAddDailyJob(t *testing.T) {
	s := newTestScheduler(t)

	noop := func(ctx context.Context) error { return nil }
	if err := s.AddDailyJob("daily-prompt", "09:00", noop); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddDailyJob("classify-batch", "07:30", noop); err != nil {
		t.Fatalf("add: %v", err)
	}

	jobs := s.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}

	if err := s.AddDailyJob("bad", "9am", noop); err == nil {
		t.Fatal("bad time format should fail")
	}
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(t)

	ran := false
	if err := s.RunNow("manual", func(ctx context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("run now: %v", err)
	}
	if !ran {
		t.Fatal("job did not run")
	}

	wantErr := errors.New("boom")
	if err := s.RunNow("failing", func(ctx context.Context) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want the job's error", err)
	}
}
