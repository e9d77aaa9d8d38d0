package model

import "time"

type NotificationKind string

const (
	NotificationKindCodeIssued  NotificationKind = "code_issued"
	NotificationKindTrialIssued NotificationKind = "trial_issued"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusDead    NotificationStatus = "dead"
)

// Notification is an outbox row. It is written after the core state change
// commits and delivered independently with its own retry schedule.
type Notification struct {
	ID                string
	Kind              NotificationKind
	Recipient         string
	RecipientName     string
	Subject           string
	HTMLBody          string
	TextBody          string
	OrderID           *string
	CodeID            *string
	Status            NotificationStatus
	Attempts          int
	NextAttemptAt     time.Time
	LastError         *string
	ProviderMessageID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
