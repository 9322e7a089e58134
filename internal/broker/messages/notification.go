package messages

import "time"

// Notification is one user-facing alert published on the notification
// topic. DedupeKey lets a consumer collapse repeats for the same shipment.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	DedupeKey string    `json:"dedupe_key"`
	RaisedAt  time.Time `json:"raised_at"`
}
