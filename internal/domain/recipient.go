package domain

import (
	"fmt"
	"time"
)

// Recipient is a participant who may receive daily reminders. Owned by the
// external user store; the pipeline only ever reads it.
type Recipient struct {
	ID                   string
	Email                string
	Timezone             string
	NotificationsEnabled bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Location resolves the recipient's IANA timezone. A name the tz database
// does not know is a data error, not a delivery error.
func (r *Recipient) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient %s has unknown timezone %q", ErrValidation, r.ID, r.Timezone)
	}
	return loc, nil
}

// LocalHour returns the recipient's wall-clock hour at the given instant.
func (r *Recipient) LocalHour(at time.Time) (int, error) {
	loc, err := r.Location()
	if err != nil {
		return 0, err
	}
	return at.In(loc).Hour(), nil
}

// Enrollment represents an active participation in a campaign. Read-only
// input to the pipeline.
type Enrollment struct {
	ID          string
	RecipientID string
	CampaignID  string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EnrolledRecipient pairs an enrollment with its recipient, as returned by
// the enrollment store's eligibility query.
type EnrolledRecipient struct {
	Enrollment Enrollment
	Recipient  Recipient
}

// SponsorMessage is the optional sponsor block attached to a campaign's
// single active pledge. Absence is normal.
type SponsorMessage struct {
	SponsorName string
	Message     string
	ImageURL    *string
}
