// Package audit records the dashboard's state-changing actions.
package audit

import "time"

// Action describes what was done.
type Action string

const (
	ActionLogin           Action = "login"
	ActionLoginFailed     Action = "login_failed"
	ActionLogout          Action = "logout"
	ActionAgentDefaultSet Action = "agent_default_set"
	ActionAgentUploaded   Action = "agent_uploaded"
	ActionAgentDeleted    Action = "agent_deleted"
)

// Outcome is the result of an audited action.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Entry is a single audit trail record.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ActorID    string    `json:"actor_id"`
	Tenant     string    `json:"tenant,omitempty"`
	Action     Action    `json:"action"`
	Target     string    `json:"target,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}
