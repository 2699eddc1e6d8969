package api

import (
	"context"
	"encoding/json"
	"fmt"
	"ht2peer/internal/auth"
	"ht2peer/internal/config"
	"ht2peer/internal/constants"
	"ht2peer/internal/domain"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// IdentityClient verifies tokens against a remote identity service. The
// service receives {"token": "..."} and answers 200 with the player id.
type IdentityClient struct {
	url    string
	client *fasthttp.Client
}

type verifyRequest struct {
	Token string `json:"token"`
}

type VerifyResponse struct {
	Subject string `json:"sub"`
	UserID  string `json:"userId"`

	// unix seconds, zero when the token never expires
	ExpiresAt int64 `json:"exp"`
}

func NewIdentityClient(cfg *config.Config) *IdentityClient {
	return newIdentityClient(cfg.IdentityURL, &fasthttp.Client{
		MaxConnsPerHost:     100,
		ReadTimeout:         constants.IdentityTimeout,
		WriteTimeout:        constants.IdentityTimeout,
		MaxIdleConnDuration: 1 * time.Minute,
	})
}

func newIdentityClient(url string, client *fasthttp.Client) *IdentityClient {
	return &IdentityClient{url: url, client: client}
}

func (c *IdentityClient) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, auth.ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, constants.IdentityTimeout)
	defer cancel()

	resp, err := doRequest[VerifyResponse](ctx, c, verifyRequest{Token: token})
	if err != nil {
		return nil, err
	}

	subject := resp.Subject
	if subject == "" {
		subject = resp.UserID
	}
	if subject == "" {
		return nil, auth.ErrInvalidToken
	}

	claims := &auth.Claims{Subject: subject}
	if resp.ExpiresAt > 0 {
		claims.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	}
	return claims, nil
}

func doRequest[T any](ctx context.Context, client *IdentityClient, body any) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	deadline, ok := ctx.Deadline()
	if ok {
		err = client.client.DoDeadline(req, resp, deadline)
	} else {
		err = client.client.Do(req, resp)
	}
	if err != nil {
		return nil, domain.Transient("identity service unreachable", err)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return nil, auth.ErrInvalidToken
	case status != fasthttp.StatusOK:
		return nil, domain.Transient("identity service failed", fmt.Errorf("API error: %d", status))
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}
	return &result, nil
}
