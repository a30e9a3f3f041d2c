// Package fcm wraps Firebase Cloud Messaging for sending push notifications
// to registered participant devices.
package fcm

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// ErrTokenNotRegistered signals that the provider permanently rejected the
// device token. The token must be removed, retrying is pointless.
var ErrTokenNotRegistered = errors.New("fcm: token not registered")

// Notification is the payload of a single push message.
type Notification struct {
	Title string
	Body  string
	Badge *int              // iOS app icon badge, omitted when nil
	Data  map[string]string // custom key-value payload, e.g. the schedule id
}

// Client sends push messages through Firebase Cloud Messaging.
type Client struct {
	messaging *messaging.Client
}

// NewClient initializes the Firebase app from the given credentials file and
// returns a ready messaging client.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	mc, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}

	return &Client{messaging: mc}, nil
}

// Send delivers one push message to one device token and returns the provider
// message id. A permanently invalid token is reported as ErrTokenNotRegistered.
func (c *Client) Send(ctx context.Context, token string, n Notification) (string, error) {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	}
	if n.Badge != nil {
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Badge: n.Badge},
			},
		}
	}

	id, err := c.messaging.Send(ctx, msg)
	if err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) {
			return "", ErrTokenNotRegistered
		}
		return "", fmt.Errorf("send push message: %w", err)
	}

	return id, nil
}
