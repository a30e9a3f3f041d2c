// Package questionnaireservice provides a client for reading questionnaire
// instances from the questionnaire service.
package questionnaireservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
)

// ErrInstanceNotFound is returned when the questionnaire service does not
// know the requested instance.
var ErrInstanceNotFound = errors.New("questionnaire instance not found")

// Client talks to the questionnaire service over its internal HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new questionnaire service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// Instance fetches one questionnaire instance including the questionnaire
// detail with its computed question set.
func (c *Client) Instance(ctx context.Context, instanceID int) (model.QuestionnaireInstance, error) {
	url := fmt.Sprintf("%s/questionnaire/questionnaireInstances/%d?withDetail=true", c.baseURL, instanceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.QuestionnaireInstance{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return model.QuestionnaireInstance{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.QuestionnaireInstance{}, ErrInstanceNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return model.QuestionnaireInstance{}, fmt.Errorf("questionnaire service error: %s", resp.Status)
	}

	var instance model.QuestionnaireInstance
	if err := json.NewDecoder(resp.Body).Decode(&instance); err != nil {
		return model.QuestionnaireInstance{}, fmt.Errorf("decode response: %w", err)
	}

	return instance, nil
}
