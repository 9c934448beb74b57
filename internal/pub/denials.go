package pub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"

	"github.com/redis/go-redis/v9"
)

const PolicyDenialsChannel = "policy_denials"

// DenialEvent is broadcast for every DENIED or ERROR verdict.
type DenialEvent struct {
	RequestID string              `json:"request_id"`
	Actor     string              `json:"actor"`
	Action    domain.ActionKind   `json:"action"`
	Resource  string              `json:"resource"`
	Guardrail string              `json:"guardrail"`
	Result    domain.PolicyResult `json:"result"`
	Reason    string              `json:"reason"`
	Timestamp time.Time           `json:"timestamp"`
}

type PolicyDenialPublisher struct {
	rdb redis.UniversalClient
}

func NewPolicyDenialPublisher(rdb redis.UniversalClient) *PolicyDenialPublisher {
	return &PolicyDenialPublisher{rdb: rdb}
}

// PublishDenial publishes a denial to the policy_denials channel.
func (p *PolicyDenialPublisher) PublishDenial(ctx context.Context, ev *domain.PolicyEvent) error {
	payload, err := json.Marshal(&DenialEvent{
		RequestID: ev.RequestID,
		Actor:     ev.Actor,
		Action:    ev.Action,
		Resource:  ev.Resource,
		Guardrail: ev.Guardrail,
		Result:    ev.Result,
		Reason:    ev.Reason,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal denial: %w", err)
	}
	if err := p.rdb.Publish(ctx, PolicyDenialsChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish denial: %w", err)
	}
	return nil
}
