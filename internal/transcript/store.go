package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gitagent/cli/internal/agentloop"
	dbmodel "gitagent/cli/internal/db"
)

var ErrNotFound = errors.New("run not found")

const stateRunning = "running"

// Run is a stored agent run. Messages is only filled by Get.
type Run struct {
	RunID       string
	Task        string
	Source      string
	Provider    string
	Model       string
	State       string
	FinalText   string
	Error       string
	Iterations  int
	StartedAt   time.Time
	CompletedAt time.Time
	Messages    []agentloop.Message
}

type Start struct {
	Task     string
	Source   string
	Provider string
	Model    string
}

type Outcome struct {
	State      agentloop.State
	FinalText  string
	Err        error
	Iterations int
	Messages   []agentloop.Message
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore uses the shared DB. Caller must not close the db through the store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db, now: time.Now}, nil
}

// Begin inserts a run in state "running" and returns its id.
func (s *Store) Begin(start Start) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("transcript store is not initialized")
	}
	task := strings.TrimSpace(start.Task)
	if task == "" {
		return "", errors.New("task is required")
	}
	row := dbmodel.Run{
		RunID:     uuid.NewString(),
		Task:      task,
		Source:    strings.TrimSpace(start.Source),
		Provider:  strings.TrimSpace(start.Provider),
		Model:     strings.TrimSpace(start.Model),
		State:     stateRunning,
		StartedAt: s.now().UTC().UnixMilli(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", err
	}
	return row.RunID, nil
}

// Finish records how a run ended together with its full message history.
func (s *Store) Finish(runID string, out Outcome) error {
	if s == nil || s.db == nil {
		return errors.New("transcript store is not initialized")
	}
	runID = strings.TrimSpace(runID)
	state := string(out.State)
	if state == "" || state == stateRunning {
		return fmt.Errorf("run %s: terminal state required, got %q", runID, state)
	}
	lastErr := ""
	if out.Err != nil {
		lastErr = out.Err.Error()
	}
	now := s.now().UTC().UnixMilli()
	rows := make([]dbmodel.RunMessage, 0, len(out.Messages))
	for i, msg := range out.Messages {
		calls := ""
		if len(msg.ToolCalls) > 0 {
			raw, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			calls = string(raw)
		}
		rows = append(rows, dbmodel.RunMessage{
			RunID:         runID,
			Seq:           i,
			Role:          string(msg.Role),
			Content:       msg.Content,
			ToolCallsJSON: calls,
			ToolCallID:    msg.ToolCallID,
			ToolName:      msg.ToolName,
			IsError:       msg.IsError,
			CreatedAt:     now,
		})
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&dbmodel.Run{}).Where("run_id = ?", runID).Updates(map[string]any{
			"state":        state,
			"final_text":   out.FinalText,
			"last_error":   lastErr,
			"iterations":   out.Iterations,
			"completed_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		if err := tx.Where("run_id = ?", runID).Delete(&dbmodel.RunMessage{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// List returns the most recent runs first, without messages.
func (s *Store) List(limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("transcript store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	rows := make([]dbmodel.Run, 0, limit)
	if err := s.db.Order("started_at DESC").Order("run_id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (s *Store) Get(runID string) (Run, error) {
	if s == nil || s.db == nil {
		return Run{}, errors.New("transcript store is not initialized")
	}
	runID = strings.TrimSpace(runID)
	var row dbmodel.Run
	if err := s.db.Where("run_id = ?", runID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Run{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return Run{}, err
	}
	var msgRows []dbmodel.RunMessage
	if err := s.db.Where("run_id = ?", runID).Order("seq ASC").Find(&msgRows).Error; err != nil {
		return Run{}, err
	}
	out := fromRow(row)
	out.Messages = make([]agentloop.Message, 0, len(msgRows))
	for _, m := range msgRows {
		msg := agentloop.Message{
			Role:       agentloop.Role(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
			IsError:    m.IsError,
		}
		if m.ToolCallsJSON != "" {
			if err := json.Unmarshal([]byte(m.ToolCallsJSON), &msg.ToolCalls); err != nil {
				return Run{}, fmt.Errorf("decode tool calls of %s#%d: %w", runID, m.Seq, err)
			}
		}
		out.Messages = append(out.Messages, msg)
	}
	return out, nil
}

func (s *Store) Clear() error {
	if s == nil || s.db == nil {
		return errors.New("transcript store is not initialized")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&dbmodel.RunMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&dbmodel.Run{}).Error
	})
}

func fromRow(row dbmodel.Run) Run {
	out := Run{
		RunID:      row.RunID,
		Task:       row.Task,
		Source:     row.Source,
		Provider:   row.Provider,
		Model:      row.Model,
		State:      row.State,
		FinalText:  row.FinalText,
		Error:      row.LastError,
		Iterations: row.Iterations,
		StartedAt:  time.UnixMilli(row.StartedAt).UTC(),
	}
	if row.CompletedAt > 0 {
		out.CompletedAt = time.UnixMilli(row.CompletedAt).UTC()
	}
	return out
}
