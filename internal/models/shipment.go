package models

import "time"

const (
	DefaultIntervalMinutes = 5
	MinIntervalMinutes     = 1
)

// TrackedShipment — одна отслеживаемая посылка. Поля last* хранят
// последнее известное хорошее состояние и переживают сбои опроса.
type TrackedShipment struct {
	ID             string     `json:"id"`
	Description    string     `json:"description"`
	TrackingNumber string     `json:"trackingNumber"`
	PostalCode     string     `json:"postalCode"`
	LastSignature  *string    `json:"lastSignature,omitempty"`
	LastStatusText *string    `json:"lastStatusText,omitempty"`
	LastStatusWhen *string    `json:"lastStatusWhen,omitempty"`
	LastCheckedAt  *time.Time `json:"lastCheckedAt,omitempty"`
	LastError      *string    `json:"lastError,omitempty"`
	Archived       bool       `json:"archived"`
	History        []string   `json:"history"`
}

// State is the whole persisted document: settings plus the tracked set.
// It is read and written wholesale, once per poll cycle.
type State struct {
	IntervalMinutes      int               `json:"intervalMinutes"`
	AutoArchiveDelivered bool              `json:"autoArchiveDelivered"`
	Trackers             []TrackedShipment `json:"trackers"`
}

func DefaultState() State {
	return State{
		IntervalMinutes:      DefaultIntervalMinutes,
		AutoArchiveDelivered: true,
		Trackers:             []TrackedShipment{},
	}
}

type ShipmentCreateInput struct {
	Description    string
	TrackingNumber string
	PostalCode     string
}
