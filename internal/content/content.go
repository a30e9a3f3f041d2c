// Package content renders the user-facing text of notifications. Each
// schedule type has its own strategy producing both a push payload and a mail
// fallback from the same domain object.
package content

// Push is the rendered payload of a push notification.
type Push struct {
	Title string
	Body  string
}

// Email is the rendered payload of a notification mail.
type Email struct {
	Subject string
	Text    string
	HTML    string
}

// Strategy renders push and mail content from one domain object.
type Strategy[T any] interface {
	Push(T) Push
	Email(T) Email
}
