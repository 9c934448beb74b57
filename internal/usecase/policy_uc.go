package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/id"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"
	"github.com/lelandsequel/metalledger/internal/repository"

	"go.uber.org/zap"
)

// Decision is what a single guardrail concludes.
type Decision int

const (
	// DecisionPass means the rule does not apply; evaluation continues.
	DecisionPass Decision = iota
	DecisionAllow
	DecisionDeny
)

// RuleOutcome is a guardrail's decision plus the reason and, when relevant,
// the normalized target it judged.
type RuleOutcome struct {
	Decision Decision
	Reason   string
	Target   string
}

func Pass() RuleOutcome               { return RuleOutcome{Decision: DecisionPass} }
func Allow(reason string) RuleOutcome { return RuleOutcome{Decision: DecisionAllow, Reason: reason} }
func Deny(reason string) RuleOutcome  { return RuleOutcome{Decision: DecisionDeny, Reason: reason} }

// GuardrailRule is one independent policy predicate.
type GuardrailRule interface {
	Name() string
	Evaluate(ctx context.Context, action domain.Action) (RuleOutcome, error)
}

// ApprovalChecker reports whether a resource has an active human approval.
type ApprovalChecker interface {
	IsActive(ctx context.Context, resourceKey string) (bool, error)
}

// EgressChecker checks an outbound target against the allowlist.
type EgressChecker interface {
	CheckEgress(target string) error
}

// DenialPublisher broadcasts non-allowed verdicts.
type DenialPublisher interface {
	PublishDenial(ctx context.Context, ev *domain.PolicyEvent) error
}

type agentLedgerRule struct{}

func (agentLedgerRule) Name() string { return domain.GuardrailAgentLedgerBlock }

func (agentLedgerRule) Evaluate(_ context.Context, a domain.Action) (RuleOutcome, error) {
	if a.Actor.IsAgent() && a.Kind.MutatesLedger() {
		return Deny("agent blocked from ledger mutation"), nil
	}
	return Pass(), nil
}

type approvalGateRule struct {
	approvals ApprovalChecker
}

func (approvalGateRule) Name() string { return domain.GuardrailApprovalGate }

func (r approvalGateRule) Evaluate(ctx context.Context, a domain.Action) (RuleOutcome, error) {
	if a.Kind != domain.ActionMutateSourceConfig {
		return Pass(), nil
	}
	active, err := r.approvals.IsActive(ctx, a.Resource)
	if err != nil {
		return RuleOutcome{}, fmt.Errorf("approval lookup for %q failed: %w", a.Resource, err)
	}
	if !active {
		out := Deny("missing active human approval for resource")
		out.Target = a.Resource
		return out, nil
	}
	out := Allow("active human approval for resource")
	out.Target = a.Resource
	return out, nil
}

type egressRule struct {
	gate EgressChecker
}

func (egressRule) Name() string { return domain.GuardrailEgressAllowlist }

func (r egressRule) Evaluate(_ context.Context, a domain.Action) (RuleOutcome, error) {
	if a.Kind != domain.ActionEgress {
		return Pass(), nil
	}
	err := r.gate.CheckEgress(a.Resource)
	if err == nil {
		return Allow("domain allowlisted"), nil
	}
	var ev *domain.EgressViolation
	if errors.As(err, &ev) {
		out := Deny(ev.Error())
		out.Target = ev.Domain
		return out, nil
	}
	return RuleOutcome{}, err
}

// DefaultRules is the fixed guardrail order: agent ledger block, approval
// gate, egress allowlist.
func DefaultRules(approvals ApprovalChecker, gate EgressChecker) []GuardrailRule {
	return []GuardrailRule{
		agentLedgerRule{},
		approvalGateRule{approvals: approvals},
		egressRule{gate: gate},
	}
}

// PolicyEngine evaluates actions against guardrails and records every
// decision before returning it.
type PolicyEngine struct {
	rules   []GuardrailRule
	audit   AuditRecorder
	events  repository.PolicyEventRepository
	denials DenialPublisher
	logger  *zap.Logger
}

type EngineOption func(*PolicyEngine)

func WithRules(rules ...GuardrailRule) EngineOption {
	return func(e *PolicyEngine) { e.rules = rules }
}

func WithDenialPublisher(p DenialPublisher) EngineOption {
	return func(e *PolicyEngine) { e.denials = p }
}

func NewPolicyEngine(
	approvals ApprovalChecker,
	gate EgressChecker,
	audit AuditRecorder,
	events repository.PolicyEventRepository,
	logger *zap.Logger,
	opts ...EngineOption,
) *PolicyEngine {
	e := &PolicyEngine{
		rules:  DefaultRules(approvals, gate),
		audit:  audit,
		events: events,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit evaluates action and returns its verdict. The audit record is
// written before returning; if it cannot be written the verdict is an ERROR
// and ErrAuditUnavailable is returned. Callers must act only on Allowed.
func (e *PolicyEngine) Submit(ctx context.Context, requestID string, action domain.Action) (domain.Verdict, error) {
	if requestID == "" {
		requestID = id.NewRequestID()
	}

	verdict := e.evaluate(ctx, action)
	verdict.RequestID = requestID

	auditID, err := e.audit.Record(ctx, domain.AuditEntry{
		RequestID: requestID,
		Actor:     action.Actor.String(),
		Action:    action.Kind,
		Resource:  action.Resource,
		Result:    verdict.Result,
		Payload:   action.Payload,
	})
	if err != nil {
		e.logger.Error("policy decision could not be audited, failing closed",
			zap.String("request_id", requestID),
			zap.String("action", string(action.Kind)),
			zap.String("verdict", string(verdict.Result)),
			zap.Error(err))
		return domain.Verdict{
			Allowed:   false,
			Result:    domain.ResultError,
			Reason:    "audit trail unavailable",
			Guardrail: domain.GuardrailAudit,
			RequestID: requestID,
		}, fmt.Errorf("%w: %v", xerrors.ErrAuditUnavailable, err)
	}
	verdict.AuditID = auditID

	ev := &domain.PolicyEvent{
		RequestID: requestID,
		Action:    action.Kind,
		Actor:     action.Actor.String(),
		Resource:  action.Resource,
		Guardrail: verdict.Guardrail,
		Result:    verdict.Result,
		Reason:    verdict.Reason,
	}
	if _, err := e.events.CreatePolicyEvent(ctx, ev); err != nil {
		e.logger.Warn("failed to write policy event",
			zap.String("request_id", requestID),
			zap.Error(err))
	}

	if !verdict.Allowed {
		e.logger.Info("action denied",
			zap.String("request_id", requestID),
			zap.String("actor", action.Actor.String()),
			zap.String("action", string(action.Kind)),
			zap.String("guardrail", verdict.Guardrail),
			zap.String("result", string(verdict.Result)),
			zap.String("reason", verdict.Reason))
		if e.denials != nil {
			if err := e.denials.PublishDenial(ctx, ev); err != nil {
				e.logger.Warn("failed to publish denial", zap.String("request_id", requestID), zap.Error(err))
			}
		}
	}
	return verdict, nil
}

func (e *PolicyEngine) evaluate(ctx context.Context, action domain.Action) domain.Verdict {
	if action.Actor.IsZero() {
		return errorVerdict(domain.GuardrailDefault, errors.New("action has no actor"))
	}
	if action.Kind == "" {
		return errorVerdict(domain.GuardrailDefault, errors.New("action has no kind"))
	}

	for _, rule := range e.rules {
		out, err := applyRule(ctx, rule, action)
		if err != nil {
			return errorVerdict(rule.Name(), err)
		}
		switch out.Decision {
		case DecisionAllow:
			return domain.Verdict{Allowed: true, Result: domain.ResultAllowed, Reason: out.Reason, Guardrail: rule.Name(), Target: out.Target}
		case DecisionDeny:
			return domain.Verdict{Allowed: false, Result: domain.ResultDenied, Reason: out.Reason, Guardrail: rule.Name(), Target: out.Target}
		}
	}
	return domain.Verdict{Allowed: true, Result: domain.ResultAllowed, Guardrail: domain.GuardrailDefault}
}

// applyRule runs one rule, converting a panic into an error.
func applyRule(ctx context.Context, rule GuardrailRule, action domain.Action) (out RuleOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("guardrail %s panicked: %v", rule.Name(), r)
		}
	}()
	return rule.Evaluate(ctx, action)
}

func errorVerdict(guardrail string, err error) domain.Verdict {
	return domain.Verdict{
		Allowed:   false,
		Result:    domain.ResultError,
		Reason:    err.Error(),
		Guardrail: guardrail,
	}
}
