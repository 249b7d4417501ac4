package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseGate/internal/pkg/payments"
)

// HandlePaymentWebhook records a gateway notification and settles the
// referenced purchase.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(payments.SignatureHeader)

	s := svc()
	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	notice, err := payments.ParseNotice(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	signatureValid := payments.VerifySignature(rawBody, signature, s.WebhookSecret)
	created, stored, err := s.Payments.RecordEvent(ctx, payments.EventInput{
		Provider:        notice.Provider,
		ProviderEventID: notice.EventID,
		EventType:       notice.Type,
		PurchaseID:      notice.PurchaseID,
		Amount:          notice.Amount,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !signatureValid {
		if created {
			_ = s.Payments.MarkProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	result, applyErr := s.Payments.ApplyEvent(ctx, notice)
	_ = s.Payments.MarkProcessed(ctx, stored.ID, applyErr)
	if applyErr != nil {
		return writeError(c, applyErr)
	}

	switch result {
	case payments.ResultIgnored:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	case payments.ResultDuplicate:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}
}
