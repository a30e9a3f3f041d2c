package model

// DeviceToken is a push credential registered by one device of a participant.
// A participant may be logged in on several devices at once.
type DeviceToken struct {
	Token     string `json:"token"`
	Pseudonym string `json:"pseudonym"`
	Study     string `json:"study"`
}
