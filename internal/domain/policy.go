package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ActorKind is the closed set of caller identities.
type ActorKind string

const (
	ActorHuman   ActorKind = "HUMAN"
	ActorAgent   ActorKind = "agent"
	ActorService ActorKind = "service"
)

// Actor identifies who submits an action. Construct with Human, Agent or
// Service; the zero value is not a valid actor.
type Actor struct {
	kind ActorKind
	role string
}

func Human() Actor { return Actor{kind: ActorHuman} }

func Agent() Actor { return Actor{kind: ActorAgent} }

// Service is a non-human, non-agent caller such as the price ingestor.
func Service(role string) Actor { return Actor{kind: ActorService, role: role} }

func (a Actor) Kind() ActorKind { return a.kind }
func (a Actor) Role() string    { return a.role }
func (a Actor) IsHuman() bool   { return a.kind == ActorHuman }
func (a Actor) IsAgent() bool   { return a.kind == ActorAgent }
func (a Actor) IsZero() bool    { return a.kind == "" }

func (a Actor) String() string {
	switch a.kind {
	case ActorHuman:
		return string(ActorHuman)
	case ActorAgent:
		return string(ActorAgent)
	case ActorService:
		return "service:" + a.role
	}
	return ""
}

// ParseActor maps a role token to an Actor. "HUMAN" must match exactly.
func ParseActor(token string) (Actor, error) {
	token = strings.TrimSpace(token)
	switch {
	case token == string(ActorHuman):
		return Human(), nil
	case strings.EqualFold(token, string(ActorAgent)):
		return Agent(), nil
	case strings.HasPrefix(token, "service:") && len(token) > len("service:"):
		return Service(strings.TrimPrefix(token, "service:")), nil
	}
	return Actor{}, &ValidationError{Field: "actor", Msg: fmt.Sprintf("unknown role token %q", token)}
}

func (a Actor) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Actor) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseActor(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ActionKind names what an action does.
type ActionKind string

const (
	ActionCreateEntry        ActionKind = "create_entry"
	ActionVoidEntry          ActionKind = "void_entry"
	ActionModifyAccount      ActionKind = "modify_account"
	ActionMutateSourceConfig ActionKind = "mutate_source_config"
	ActionEgress             ActionKind = "egress"
	ActionRead               ActionKind = "read"
	ActionForecastRun        ActionKind = "forecast_run"
	ActionReportWrite        ActionKind = "report_write"
	ActionIngestTick         ActionKind = "ingest_tick"

	// Sub-actions recorded directly on the audit trail.
	ActionRecordApproval ActionKind = "record_approval"
	ActionRevokeApproval ActionKind = "revoke_approval"
)

// MutatesLedger reports whether the kind writes accounts or journal entries.
func (k ActionKind) MutatesLedger() bool {
	switch k {
	case ActionCreateEntry, ActionVoidEntry, ActionModifyAccount:
		return true
	}
	return false
}

// Action is a request submitted to the policy engine.
type Action struct {
	Actor    Actor      `json:"actor"`
	Kind     ActionKind `json:"kind"`
	Resource string     `json:"resource"`
	Payload  any        `json:"payload,omitempty"`
}

// PolicyResult is the outcome of one policy evaluation.
type PolicyResult string

const (
	ResultAllowed PolicyResult = "ALLOWED"
	ResultDenied  PolicyResult = "DENIED"
	ResultError   PolicyResult = "ERROR"
)

// Guardrail names recorded on verdicts and policy events.
const (
	GuardrailAgentLedgerBlock = "agent_ledger_block"
	GuardrailApprovalGate     = "approval_gate"
	GuardrailEgressAllowlist  = "egress_allowlist"
	GuardrailDefault          = "default"
	GuardrailAudit            = "audit"

	// GuardrailHumanRoleRequired marks rejections at the transport boundary.
	GuardrailHumanRoleRequired = "human_role_required"
)

// Verdict is what Submit returns. Allowed is false for DENIED and ERROR.
type Verdict struct {
	Allowed   bool         `json:"allowed"`
	Result    PolicyResult `json:"result"`
	Reason    string       `json:"reason,omitempty"`
	Guardrail string       `json:"guardrail"`
	RequestID string       `json:"request_id"`
	AuditID   int64        `json:"audit_id,omitempty"`
	Target    string       `json:"-"`
}

// Err converts a non-allowed verdict into a typed error.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	switch v.Guardrail {
	case GuardrailEgressAllowlist:
		if v.Result == ResultDenied {
			return &EgressViolation{Domain: v.Target}
		}
	case GuardrailApprovalGate:
		if v.Result == ResultDenied {
			return &PolicyViolation{
				Guardrail: v.Guardrail,
				Reason:    v.Reason,
				Err:       &ApprovalExpiredOrMissing{ResourceKey: v.Target},
			}
		}
	}
	return &PolicyViolation{Guardrail: v.Guardrail, Reason: v.Reason}
}

// PolicyEvent is the write-once record of one evaluation.
type PolicyEvent struct {
	ID        int64        `json:"id" db:"id"`
	RequestID string       `json:"request_id" db:"request_id"`
	Action    ActionKind   `json:"action" db:"action"`
	Actor     string       `json:"actor" db:"actor"`
	Resource  string       `json:"resource" db:"resource"`
	Guardrail string       `json:"guardrail" db:"guardrail"`
	Result    PolicyResult `json:"result" db:"result"`
	Reason    string       `json:"reason" db:"reason"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
