package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/app/repository"
	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
	"github.com/ManuelReschke/CourseGate/internal/pkg/ledger"
)

// ErrAmountMismatch indicates a completed payment that does not cover the
// purchase price. The purchase stays pending.
var ErrAmountMismatch = errors.New("payment amount does not cover purchase price")

// ErrMissingPurchase indicates a settling notice that names no purchase.
var ErrMissingPurchase = errors.New("payment notice without purchase id")

// Result describes what applying a notice did to the ledger.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
)

// Settler is the part of the ledger a payment notice drives.
type Settler interface {
	SettlePurchase(ctx context.Context, purchaseID uint, outcome string) (*models.Purchase, error)
}

// EventInput is a raw gateway notification to persist.
type EventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PurchaseID      uint
	Amount          int64
	PayloadJSON     string
	SignatureValid  bool
}

// Service turns gateway notifications into ledger settlements.
type Service struct {
	events    repository.PaymentEventRepository
	purchases repository.PurchaseRepository
	settler   Settler
}

// NewService creates a payment intake service from injected dependencies.
func NewService(repos *repository.Repositories, settler Settler) *Service {
	return &Service{events: repos.PaymentEvent, purchases: repos.Purchase, settler: settler}
}

var _ Settler = (*ledger.Service)(nil)

// RecordEvent persists a notification idempotently. created is false when
// the same provider event was stored before. Events with an invalid
// signature are keyed by their payload hash instead of the provider id.
func (s *Service) RecordEvent(ctx context.Context, in EventInput) (bool, *models.PaymentEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	// Unsigned deliveries never claim the gateway's event id.
	eventID := strings.TrimSpace(in.ProviderEventID)
	switch {
	case !in.SignatureValid:
		eventID = "unverified:" + payloadHash(in.PayloadJSON)
	case eventID == "":
		eventID = "hash:" + payloadHash(in.PayloadJSON)
	}

	event := &models.PaymentEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PurchaseID:      in.PurchaseID,
		Amount:          in.Amount,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.events.CreateIfNotExists(ctx, event)
}

func payloadHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ApplyEvent settles the purchase a notice refers to. A notice for an
// already settled purchase is reported as duplicate.
func (s *Service) ApplyEvent(ctx context.Context, n PaymentNotice) (Result, error) {
	if !IsKnownEventType(n.Type) {
		return ResultIgnored, nil
	}
	if n.PurchaseID == 0 {
		return "", ErrMissingPurchase
	}

	outcome := ledger.OutcomeRejected
	if n.Type == models.PaymentEventCompleted {
		purchase, err := s.purchases.GetByID(ctx, n.PurchaseID)
		if err != nil {
			return "", err
		}
		if n.Amount < purchase.Price {
			return "", fmt.Errorf("%w: purchase %d costs %d, paid %d", ErrAmountMismatch, purchase.ID, purchase.Price, n.Amount)
		}
		outcome = ledger.OutcomeApproved
	}

	if _, err := s.settler.SettlePurchase(ctx, n.PurchaseID, outcome); err != nil {
		if errors.Is(err, apperr.ErrAlreadySettled) {
			log.Infof("[Payments] Notice %s for purchase %d arrived after settlement", n.EventID, n.PurchaseID)
			return ResultDuplicate, nil
		}
		return "", err
	}
	return ResultApplied, nil
}

// MarkProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkProcessed(ctx context.Context, eventID uint, processingErr error) error {
	if eventID == 0 {
		return errors.New("payment_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.events.MarkProcessed(ctx, eventID, errMsg)
}
