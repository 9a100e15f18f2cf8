package db

// Run is one agent run: the task, how it ended and the final answer.
type Run struct {
	RunID       string `gorm:"column:run_id;primaryKey"`
	Task        string `gorm:"column:task;not null;default:''"`
	Source      string `gorm:"column:source;not null;default:''"`
	Provider    string `gorm:"column:provider;not null;default:''"`
	Model       string `gorm:"column:model;not null;default:''"`
	State       string `gorm:"column:state;not null;default:'running'"`
	FinalText   string `gorm:"column:final_text;not null;default:''"`
	LastError   string `gorm:"column:last_error;not null;default:''"`
	Iterations  int    `gorm:"column:iterations;not null;default:0"`
	StartedAt   int64  `gorm:"column:started_at;not null;default:0"`
	CompletedAt int64  `gorm:"column:completed_at;not null;default:0"`
}

func (Run) TableName() string { return "runs" }

type RunMessage struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID         string `gorm:"column:run_id;not null"`
	Seq           int    `gorm:"column:seq;not null;default:0"`
	Role          string `gorm:"column:role;not null"`
	Content       string `gorm:"column:content;not null;default:''"`
	ToolCallsJSON string `gorm:"column:tool_calls_json;not null;default:''"`
	ToolCallID    string `gorm:"column:tool_call_id;not null;default:''"`
	ToolName      string `gorm:"column:tool_name;not null;default:''"`
	IsError       bool   `gorm:"column:is_error;not null;default:false"`
	CreatedAt     int64  `gorm:"column:created_at;not null;default:0"`
}

func (RunMessage) TableName() string { return "run_messages" }
