package dto

// CreateNotificationRequest is the JSON body for posting a custom
// notification. SendOn is optional; an empty value means deliver on the next
// dispatch pass.
type CreateNotificationRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1"`
	Title      string   `json:"title" validate:"required"`
	Body       string   `json:"body" validate:"required"`
	SendOn     string   `json:"send_on"`
}

// EmailRequest is the JSON body for a direct mail blast.
type EmailRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1"`
	Subject    string   `json:"subject" validate:"required"`
	Body       string   `json:"body" validate:"required"`
}

// TokenRequest is the JSON body for registering a device token.
type TokenRequest struct {
	Token string `json:"fcm_token" validate:"required"`
	Study string `json:"study"`
}
