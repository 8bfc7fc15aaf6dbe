package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xela07ax/openexec-gateway/internal/domain"
)

// AuthorityClient — клиент внешнего центра выдачи одобрений.
// Сетевые вызовы к authority обернуты в Rate Limiter, Circuit Breaker
// и ретраи с экспоненциальным бэкоффом: сбой authority не должен
// каскадировать в шлюз.
type AuthorityClient struct {
	baseURL string
	httpc   *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewAuthorityClient(baseURL string) *AuthorityClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "approval-authority",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &AuthorityClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(50), 10),
	}
}

type mintRequest struct {
	Action  string                 `json:"action"`
	Payload map[string]interface{} `json:"payload"`
}

// RequestArtifact запрашивает у authority артефакт для пары action+payload.
// Сам шлюз этим методом не пользуется (артефакт приносит клиент) — он нужен
// embedder-ам и демо-потоку governed-режима.
func (c *AuthorityClient) RequestArtifact(ctx context.Context, action string, payload map[string]interface{}) (*domain.ApprovalArtifact, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	body, err := json.Marshal(mintRequest{Action: action, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("authority: marshal request: %w", err)
	}

	cbResult, err := c.cb.Execute(func() (interface{}, error) {
		var artifact *domain.ApprovalArtifact

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var callErr error
			artifact, callErr = c.doMint(tCtx, body)
			return callErr
		})

		return artifact, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.(*domain.ApprovalArtifact), nil
}

func (c *AuthorityClient) doMint(ctx context.Context, body []byte) (*domain.ApprovalArtifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/approvals", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("authority: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authority call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("authority returned [%d]: %s", resp.StatusCode, string(data))
	}

	var artifact domain.ApprovalArtifact
	if err := json.NewDecoder(resp.Body).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("authority: decode artifact: %w", err)
	}
	return &artifact, nil
}
