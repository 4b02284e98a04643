package domain

import "strconv"

// HostDecision is the closed set of editorial outcomes raised by the
// host workflow. It is the input alphabet of decision mapping; the
// output alphabet is DecisionKind.
type HostDecision string

const (
	HostDecisionAccept            HostDecision = "ACCEPT"
	HostDecisionConditionalAccept HostDecision = "CONDITIONAL_ACCEPT"
	HostDecisionMinorRevision     HostDecision = "MINOR_REVISION"
	HostDecisionMajorRevision     HostDecision = "MAJOR_REVISION"
	HostDecisionReject            HostDecision = "REJECT"
)

func (d HostDecision) String() string { return string(d) }

func (d HostDecision) IsValid() bool {
	switch d {
	case HostDecisionAccept, HostDecisionConditionalAccept, HostDecisionMinorRevision,
		HostDecisionMajorRevision, HostDecisionReject:
		return true
	}
	return false
}

// DecisionKind is RQC's taxonomy of editorial decisions. The wire
// values carry no separators, matching the remote schema.
type DecisionKind string

const (
	DecisionAccept        DecisionKind = "ACCEPT"
	DecisionMinorRevision DecisionKind = "MINORREVISION"
	DecisionMajorRevision DecisionKind = "MAJORREVISION"
	DecisionReject        DecisionKind = "REJECT"
)

func (d DecisionKind) String() string { return string(d) }

func (d DecisionKind) IsValid() bool {
	switch d {
	case DecisionAccept, DecisionMinorRevision, DecisionMajorRevision, DecisionReject:
		return true
	}
	return false
}

// TaskState represents the lifecycle state of a delivery task.
// Successful delivery deletes the row, so there is no terminal
// "done" state; ABANDONED rows are retained for audit.
type TaskState string

const (
	TaskStatePending   TaskState = "PENDING"
	TaskStateInFlight  TaskState = "IN_FLIGHT"
	TaskStateAbandoned TaskState = "ABANDONED"
)

func (s TaskState) String() string { return string(s) }

func (s TaskState) IsValid() bool {
	switch s {
	case TaskStatePending, TaskStateInFlight, TaskStateAbandoned:
		return true
	}
	return false
}

func (s TaskState) IsTerminal() bool { return s == TaskStateAbandoned }

// DeliveryOutcome classifies the result of one RQC call attempt.
type DeliveryOutcome string

const (
	OutcomeDelivered         DeliveryOutcome = "DELIVERED"
	OutcomeTransientFailure  DeliveryOutcome = "TRANSIENT_FAILURE"
	OutcomeCredentialInvalid DeliveryOutcome = "CREDENTIAL_INVALID"
	OutcomePermanentReject   DeliveryOutcome = "PERMANENT_REJECT"
)

func (o DeliveryOutcome) String() string { return string(o) }

func (o DeliveryOutcome) IsValid() bool {
	switch o {
	case OutcomeDelivered, OutcomeTransientFailure, OutcomeCredentialInvalid, OutcomePermanentReject:
		return true
	}
	return false
}

// Retriable reports whether the outcome is queue-eligible. Only
// transient failures are; retrying a rejected payload or a revoked key
// can never succeed.
func (o DeliveryOutcome) Retriable() bool { return o == OutcomeTransientFailure }

// HostEditorRole is the host's own editor taxonomy, the input side of
// level mapping. Plain editors map to level 3, section editors to
// level 1.
type HostEditorRole string

const (
	HostEditorRoleEditor        HostEditorRole = "EDITOR"
	HostEditorRoleSectionEditor HostEditorRole = "SECTION_EDITOR"
)

func (r HostEditorRole) String() string { return string(r) }

func (r HostEditorRole) IsValid() bool {
	return r == HostEditorRoleEditor || r == HostEditorRoleSectionEditor
}

// EditorLevel is RQC's taxonomy of editorial involvement.
// Level 2 exists in the remote schema but is never populated here.
type EditorLevel int

const (
	EditorLevelSection  EditorLevel = 1
	EditorLevelDecision EditorLevel = 3
)

func (l EditorLevel) String() string { return strconv.Itoa(int(l)) }

func (l EditorLevel) IsValid() bool {
	return l == EditorLevelSection || l == EditorLevelDecision
}

// ServiceRole is the authorization level of a caller's service token.
type ServiceRole string

const (
	RoleHost      ServiceRole = "host"
	RoleScheduler ServiceRole = "scheduler"
	RoleAdmin     ServiceRole = "admin"
)

func (r ServiceRole) String() string { return string(r) }

func (r ServiceRole) IsValid() bool {
	switch r {
	case RoleHost, RoleScheduler, RoleAdmin:
		return true
	}
	return false
}
