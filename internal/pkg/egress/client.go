package egress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/requestid"

	"go.uber.org/zap"
)

// Submitter is the policy engine entry point.
type Submitter interface {
	Submit(ctx context.Context, requestID string, action domain.Action) (domain.Verdict, error)
}

// Client is the outbound HTTP client for collaborators. Every request,
// redirects included, is submitted as an egress action before dispatch.
type Client struct {
	http      *http.Client
	submitter Submitter
	actor     domain.Actor
	logger    *zap.Logger
}

type ClientOption func(*Client)

// WithHTTPClient overrides the underlying transport client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		cp := *hc
		c.http = &cp
	}
}

func NewClient(submitter Submitter, actor domain.Actor, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		submitter: submitter,
		actor:     actor,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after %d redirects", len(via))
		}
		return c.authorize(req)
	}
	return c
}

// Do authorizes req through the policy engine and dispatches it only when
// the verdict is allowed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx, _ := requestid.Ensure(req.Context())
	req = req.WithContext(ctx)
	if err := c.authorize(req); err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// Get issues a GET to rawURL under ctx.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *Client) authorize(req *http.Request) error {
	ctx, rid := requestid.Ensure(req.Context())
	target := req.URL.String()

	verdict, err := c.submitter.Submit(ctx, rid, domain.Action{
		Actor:    c.actor,
		Kind:     domain.ActionEgress,
		Resource: target,
		Payload: map[string]string{
			"method": req.Method,
			"url":    target,
		},
	})
	if err != nil {
		return err
	}
	if !verdict.Allowed {
		c.logger.Warn("egress blocked",
			zap.String("request_id", rid),
			zap.String("url", target),
			zap.String("reason", verdict.Reason))
		return verdict.Err()
	}
	return nil
}
