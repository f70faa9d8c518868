package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType identifies the kind of notification being audited.
type NotificationType string

// TypeDailyReminder is the daily habit check-in email.
const TypeDailyReminder NotificationType = "daily-reminder"

func (t NotificationType) String() string { return string(t) }

// LogStatus tracks the lifecycle of a notification log entry.
type LogStatus string

const (
	LogStatusPending LogStatus = "pending"
	LogStatusSent    LogStatus = "sent"
	LogStatusFailed  LogStatus = "failed"
)

func (s LogStatus) String() string { return string(s) }

func (s LogStatus) IsValid() bool {
	switch s {
	case LogStatusPending, LogStatusSent, LogStatusFailed:
		return true
	}
	return false
}

func ParseLogStatusFromString(s string) (LogStatus, error) {
	st := LogStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid log status %q", ErrValidation, s)
	}
	return st, nil
}

// NotificationLogEntry is the audit record for one delivery job lifecycle.
// Created pending on the first attempt and updated in place on terminal
// resolution, so "did X get notified today" queries see the final status.
type NotificationLogEntry struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipientId"`
	Type        NotificationType `json:"type"`
	Status      LogStatus        `json:"status"`
	Error       *string          `json:"error,omitempty"`
	SentAt      *time.Time       `json:"sentAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
