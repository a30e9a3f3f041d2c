// Package userservice provides a client for participant lookups in the user
// service.
package userservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Client talks to the user service over its internal HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new user service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// ProbandExists reports whether a participant with the given pseudonym is
// registered.
func (c *Client) ProbandExists(ctx context.Context, pseudonym string) (bool, error) {
	reqURL := fmt.Sprintf("%s/user/users/%s", c.baseURL, url.PathEscape(pseudonym))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("user service error: %s", resp.Status)
	}
}

// PseudonymsForStudy returns the pseudonyms of every active participant of a
// study. Used to expand study-wide custom notifications into per-participant
// deliveries.
func (c *Client) PseudonymsForStudy(ctx context.Context, study string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/user/studies/%s/probands", c.baseURL, url.PathEscape(study))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user service error: %s", resp.Status)
	}

	var pseudonyms []string
	if err := json.NewDecoder(resp.Body).Decode(&pseudonyms); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return pseudonyms, nil
}
