package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/habitsforgood/reminder-engine/internal/domain"
	"github.com/habitsforgood/reminder-engine/internal/service"
)

// ReminderTrigger is the manual send surface exposed over HTTP.
type ReminderTrigger interface {
	TriggerNow(ctx context.Context, campaignID string) (service.TriggerResult, error)
}

// AuditLogReader is the read side of the delivery audit trail.
type AuditLogReader interface {
	GetByID(ctx context.Context, id string) (*domain.NotificationLogEntry, error)
}

type ReminderHandler struct {
	trigger ReminderTrigger
	logs    AuditLogReader
}

func NewReminderHandler(trigger ReminderTrigger, logs AuditLogReader) (*ReminderHandler, error) {
	if trigger == nil {
		return nil, fmt.Errorf("trigger service is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("audit log reader is required")
	}
	return &ReminderHandler{trigger: trigger, logs: logs}, nil
}

func RegisterReminderRoutes(router fiber.Router, trigger ReminderTrigger, logs AuditLogReader) error {
	h, err := NewReminderHandler(trigger, logs)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/reminders/trigger", h.TriggerReminders)
	v1.Get("/reminders/logs/:id", h.GetLogEntry)

	return nil
}

type logEntryResponse struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipientId"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TriggerReminders runs a synchronous send to every enabled enrollment,
// optionally narrowed with ?campaignId=. The response carries the tally.
func (h *ReminderHandler) TriggerReminders(c *fiber.Ctx) error {
	campaignID := strings.TrimSpace(c.Query("campaignId"))

	result, err := h.trigger.TriggerNow(c.Context(), campaignID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *ReminderHandler) GetLogEntry(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	entry, err := h.logs.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(logEntryResponse{
		ID:          entry.ID,
		RecipientID: entry.RecipientID,
		Type:        entry.Type.String(),
		Status:      entry.Status.String(),
		Error:       entry.Error,
		SentAt:      entry.SentAt,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
