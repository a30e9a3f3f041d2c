// Package email provides a simple SMTP client for sending service mails.
package email

import (
	"gopkg.in/mail.v2"
)

// Message is a rendered mail with both plain-text and HTML bodies.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

type Client struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
}

func NewClient(smtpHost string, smtpPort int, username, password, from string) *Client {
	return &Client{
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		username: username,
		password: password,
		from:     from,
	}
}

// Send delivers the message to a single recipient address.
func (c *Client) Send(to string, msg Message) error {
	message := mail.NewMessage()

	message.SetHeader("From", c.from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", msg.Subject)

	message.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		message.AddAlternative("text/html", msg.HTML)
	}

	dialer := mail.NewDialer(c.smtpHost, c.smtpPort, c.username, c.password)

	return dialer.DialAndSend(message)
}
