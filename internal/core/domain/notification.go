package domain

type NotificationChannel string

const (
	ChannelSMS   NotificationChannel = "sms"
	ChannelEmail NotificationChannel = "email"
)

// NotificationIntent is what the engine hands the dispatcher: who to reach
// and what to say. Delivery is somebody else's problem.
type NotificationIntent struct {
	Recipient string              `json:"recipient"`
	Channel   NotificationChannel `json:"channel"`
	Subject   string              `json:"subject,omitempty"`
	Message   string              `json:"message"`
}
