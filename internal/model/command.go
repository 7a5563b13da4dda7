package model

import "time"

// CommandState is the lifecycle stage of a queued command.
type CommandState string

const (
	CommandQueued    CommandState = "queued"
	CommandRunning   CommandState = "running"
	CommandSucceeded CommandState = "succeeded"
	CommandFailed    CommandState = "failed"
	CommandRejected  CommandState = "rejected"
)

// Command is one operator intent flowing through a control or settings queue.
type Command struct {
	ID         string
	Kind       string
	Payload    map[string]any
	Source     string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	State      CommandState
	Message    string
	Result     map[string]any
	// Noop is set true when a terminal command detected it had nothing to
	// do (e.g. a repeated plant.record_start with the same path).
	Noop bool
}

// IsTerminal reports whether the command has reached a final state.
func (c *Command) IsTerminal() bool {
	switch c.State {
	case CommandSucceeded, CommandFailed, CommandRejected:
		return true
	default:
		return false
	}
}
