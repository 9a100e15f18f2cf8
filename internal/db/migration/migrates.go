package migration

import (
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"
)

type step struct {
	name string
	run  func(*Migration) error
}

var (
	steps    []step
	initOnce sync.Once
)

// Migration is passed to each migration step. DB is set by RunAll.
type Migration struct {
	DB   *gorm.DB
	logs []string
}

func (m *Migration) Log(v ...interface{}) {
	m.logs = append(m.logs, fmt.Sprint(v...))
}

func register(name string, run func(*Migration) error) {
	steps = append(steps, step{name: name, run: run})
}

// Init registers the built-in steps once.
func Init() {
	initOnce.Do(func() {
		register("interrupted_runs_failed", markInterruptedRuns)
	})
}

// RunAll runs all registered migrations in order. Used for data/behavior one-shots; schema is synced via db.SyncSchema.
func RunAll(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	ctx := &Migration{DB: db}
	for _, s := range steps {
		ctx.logs = nil
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", s.name, err)
		}
		if len(ctx.logs) > 0 {
			slog.Info("migration step applied", "step", s.name, "logs", ctx.logs)
		}
	}
	return nil
}

// markInterruptedRuns closes runs left in "running" by a process that died
// before recording an outcome.
func markInterruptedRuns(m *Migration) error {
	res := m.DB.Exec(`UPDATE runs SET state = 'failed', last_error = 'interrupted before completion' WHERE state = 'running'`)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		m.Log("marked interrupted runs: ", res.RowsAffected)
	}
	return nil
}
