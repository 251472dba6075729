package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

func TestNextRun(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("weekly monday morning in tenant timezone", func(t *testing.T) {
		// Wednesday 4 March 2026, noon UTC.
		after := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
		next, err := NextRun("0 9 * * 1", "Europe/Madrid", after)
		if err != nil {
			t.Fatalf("NextRun: %v", err)
		}
		local := next.In(madrid)
		if local.Weekday() != time.Monday || local.Hour() != 9 || local.Minute() != 0 {
			t.Errorf("next = %v, want Monday 09:00 local", local)
		}
		if local.Day() != 9 || local.Month() != time.March {
			t.Errorf("next = %v, want 9 March", local)
		}
	})

	t.Run("daily firing is strictly after the reference", func(t *testing.T) {
		after := time.Date(2026, 3, 4, 18, 30, 0, 0, time.UTC)
		next, err := NextRun("30 18 * * *", "", after)
		if err != nil {
			t.Fatal(err)
		}
		if !next.After(after) {
			t.Errorf("next = %v, must be strictly after %v", next, after)
		}
		if next.Sub(after) != 24*time.Hour {
			t.Errorf("next - after = %v, want 24h", next.Sub(after))
		}
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := NextRun("not a cron", "", time.Now())
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})

	t.Run("unknown timezone falls back to UTC", func(t *testing.T) {
		after := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
		next, err := NextRun("0 9 * * *", "Mars/Olympus", after)
		if err != nil {
			t.Fatal(err)
		}
		if got := next.In(time.UTC); got.Hour() != 9 || got.Day() != 4 {
			t.Errorf("next = %v, want 09:00 UTC same day", got)
		}
	})
}

func TestCronScheduler_ScheduleCron(t *testing.T) {
	repo := newMemTaskRepo()
	q := NewQueue(fastConfig(), repo, &mockRunner{}, allowAll(), nil, testLogger())
	s := NewCronScheduler(repo, q, testLogger())

	task := model.NewTask("agent-1", "tenant-1", "digest", "d", model.TaskKindScheduled)
	task.CronExpr = "0 9 * * 1"
	repo.add(task)

	if err := s.ScheduleCron(context.Background(), task.ID, task.CronExpr, "Europe/Madrid"); err != nil {
		t.Fatalf("ScheduleCron: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), repository.NoTX, task.ID)
	if stored.NextRunAt == nil || !stored.NextRunAt.After(time.Now()) {
		t.Errorf("NextRunAt = %v, want a future firing persisted", stored.NextRunAt)
	}

	if err := s.ScheduleCron(context.Background(), task.ID, "bad", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad expression err = %v, want ErrValidation", err)
	}
	if err := s.ScheduleCron(context.Background(), "missing", "0 9 * * 1", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown task err = %v, want ErrNotFound", err)
	}

	s.Unschedule(task.ID)
	s.Unschedule("missing") // no-op
}

func TestCronScheduler_Restore(t *testing.T) {
	repo := newMemTaskRepo()
	q := NewQueue(fastConfig(), repo, &mockRunner{}, allowAll(), nil, testLogger())
	s := NewCronScheduler(repo, q, testLogger())

	weekly := model.NewTask("agent-1", "tenant-1", "digest", "d", model.TaskKindScheduled)
	weekly.CronExpr = "0 9 * * 1"
	weekly.Timezone = "Europe/Madrid"
	repo.add(weekly)

	daily := model.NewTask("agent-1", "tenant-1", "report", "r", model.TaskKindScheduled)
	daily.CronExpr = "30 6 * * *"
	repo.add(daily)

	broken := model.NewTask("agent-1", "tenant-1", "stale", "s", model.TaskKindScheduled)
	broken.CronExpr = "not a cron"
	repo.add(broken)

	oneShot := model.NewTask("agent-1", "tenant-1", "once", "o", model.TaskKindAdhoc)
	repo.add(oneShot)

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	s.mu.Lock()
	registered := len(s.entries)
	_, hasWeekly := s.entries[weekly.ID]
	_, hasDaily := s.entries[daily.ID]
	_, hasBroken := s.entries[broken.ID]
	s.mu.Unlock()
	if registered != 2 || !hasWeekly || !hasDaily {
		t.Errorf("registered triggers = %d (weekly=%v daily=%v), want both valid templates", registered, hasWeekly, hasDaily)
	}
	if hasBroken {
		t.Error("broken expression must be skipped, not registered")
	}

	for _, id := range []string{weekly.ID, daily.ID} {
		stored, _ := repo.FindByID(context.Background(), repository.NoTX, id)
		if stored.NextRunAt == nil || !stored.NextRunAt.After(time.Now()) {
			t.Errorf("template %s NextRunAt = %v, want a future firing persisted", id, stored.NextRunAt)
		}
	}
}

func TestCronScheduler_FiringSpawnsRun(t *testing.T) {
	repo := newMemTaskRepo()
	q := NewQueue(fastConfig(), repo, &mockRunner{}, allowAll(), nil, testLogger())
	s := NewCronScheduler(repo, q, testLogger())

	// A completed template must still fire: each firing is its own run.
	tpl := model.NewTask("agent-1", "tenant-1", "digest", "d", model.TaskKindScheduled)
	tpl.CronExpr = "0 9 * * 1"
	tpl.Status = model.TaskStatusCompleted
	tpl.Priority = 8
	repo.add(tpl)

	sched, err := cron.ParseStandard(tpl.CronExpr)
	if err != nil {
		t.Fatal(err)
	}
	s.fire(tpl.ID, sched, locationOrUTC("Europe/Madrid"))

	if repo.count() != 2 {
		t.Fatalf("tasks in store = %d, want template + run", repo.count())
	}
	var run *model.Task
	repo.mu.RLock()
	for _, task := range repo.store {
		if task.ID != tpl.ID {
			cp := *task
			run = &cp
		}
	}
	repo.mu.RUnlock()
	if run == nil {
		t.Fatal("no run created")
	}
	if run.Kind != model.TaskKindAdhoc || run.Priority != 8 {
		t.Errorf("run = %+v", run)
	}
	if run.Status != model.TaskStatusQueued {
		t.Errorf("run status = %s, want queued", run.Status)
	}

	stored, _ := repo.FindByID(context.Background(), repository.NoTX, tpl.ID)
	if stored.Status != model.TaskStatusCompleted {
		t.Errorf("template status = %s, must stay terminal", stored.Status)
	}
	if stored.NextRunAt == nil || stored.LastRunAt == nil {
		t.Errorf("template schedule fields = (%v, %v), want both set", stored.NextRunAt, stored.LastRunAt)
	}
}
