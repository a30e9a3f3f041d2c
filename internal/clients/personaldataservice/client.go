// Package personaldataservice provides a client for resolving participant
// contact addresses. Pseudonymized data and contact data live in separate
// services, so every mail delivery goes through this lookup.
package personaldataservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// ErrNoEmail is returned when a participant has no mail address on file.
var ErrNoEmail = errors.New("participant has no email address")

const cacheTTL = 15 * time.Minute

// Client talks to the personal data service and caches resolved addresses in
// Redis for a short while. Address lookups happen on every mail delivery and
// the addresses change rarely.
type Client struct {
	baseURL string
	client  *http.Client
	cache   *redis.Client
	retry   retry.Strategy
}

// NewClient creates a new personal data service client.
func NewClient(baseURL string, cache *redis.Client, strategy retry.Strategy) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{},
		cache:   cache,
		retry:   strategy,
	}
}

// Email resolves the mail address of a participant. A participant without an
// address is reported as ErrNoEmail.
func (c *Client) Email(ctx context.Context, pseudonym string) (string, error) {
	cacheKey := "email:" + pseudonym

	if cached, err := c.cache.GetWithRetry(ctx, c.retry, cacheKey); err == nil && cached != "" {
		return cached, nil
	} else if err != nil && !errors.Is(err, goredis.Nil) {
		zlog.Logger.Warn().Err(err).Str("pseudonym", pseudonym).Msg("email cache lookup failed")
	}

	email, err := c.fetchEmail(ctx, pseudonym)
	if err != nil {
		return "", err
	}

	if err := c.cache.SetWithRetry(ctx, c.retry, cacheKey, email); err != nil {
		zlog.Logger.Warn().Err(err).Str("pseudonym", pseudonym).Msg("email cache write failed")
	}

	return email, nil
}

func (c *Client) fetchEmail(ctx context.Context, pseudonym string) (string, error) {
	url := fmt.Sprintf("%s/personal/personalData/proband/%s/email", c.baseURL, pseudonym)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoEmail
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("personal data service error: %s", resp.Status)
	}

	var email string
	if err := json.NewDecoder(resp.Body).Decode(&email); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if email == "" {
		return "", ErrNoEmail
	}

	return email, nil
}
