package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/CourseGate/app/models"
)

// DefaultProvider is recorded for notices that do not name their gateway.
const DefaultProvider = "gateway"

// PaymentNotice is the normalized form of a gateway notification.
type PaymentNotice struct {
	Provider   string
	EventID    string
	Type       string
	PurchaseID uint
	Amount     int64
}

type webhookPayload struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Type     string `json:"type"`
	Data     struct {
		PurchaseID uint  `json:"purchase_id"`
		Amount     int64 `json:"amount"`
	} `json:"data"`
}

// ParseNotice decodes a webhook body.
func ParseNotice(raw []byte) (PaymentNotice, error) {
	var body webhookPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		return PaymentNotice{}, fmt.Errorf("decode payment notice: %w", err)
	}
	if strings.TrimSpace(body.Type) == "" {
		return PaymentNotice{}, errors.New("payment notice without type")
	}

	notice := PaymentNotice{
		Provider:   strings.ToLower(strings.TrimSpace(body.Provider)),
		EventID:    strings.TrimSpace(body.ID),
		Type:       strings.ToLower(strings.TrimSpace(body.Type)),
		PurchaseID: body.Data.PurchaseID,
		Amount:     body.Data.Amount,
	}
	if notice.Provider == "" {
		notice.Provider = DefaultProvider
	}
	return notice, nil
}

// IsKnownEventType reports whether the notice type triggers a settlement.
func IsKnownEventType(eventType string) bool {
	switch eventType {
	case models.PaymentEventCompleted, models.PaymentEventFailed, models.PaymentEventCanceled:
		return true
	default:
		return false
	}
}
