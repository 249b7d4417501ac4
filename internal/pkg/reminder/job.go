package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/app/repository"
	"github.com/ManuelReschke/CourseGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseGate/internal/pkg/events"
	"github.com/ManuelReschke/CourseGate/internal/pkg/mail"
)

// Window is how far ahead stored end dates are scanned. It is one day wider
// than the expiring band so that ceil rounding never drops a candidate.
const Window = (entitlements.ExpiringBandDays + 1) * entitlements.Day

// SentTTL keeps the dedup marker until the purchase has left the band.
const SentTTL = Window

// Deduper remembers which purchases were already reminded.
type Deduper interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Evaluator recomputes the entitlement of one purchase.
type Evaluator interface {
	Now() time.Time
	EvaluatePurchase(ctx context.Context, p models.Purchase) (entitlements.Entitlement, error)
}

// Stats summarizes one run.
type Stats struct {
	Scanned int
	Sent    int
	Skipped int
	Failed  int
}

// Job mails a renewal reminder once per purchase entering the expiring band.
type Job struct {
	purchases repository.PurchaseRepository
	users     repository.UserRepository
	engine    Evaluator
	dedup     Deduper
	mailer    mail.Mailer
	publisher events.Publisher
}

func NewJob(repos *repository.Repositories, engine Evaluator, dedup Deduper, mailer mail.Mailer, publisher events.Publisher) *Job {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Job{
		purchases: repos.Purchase,
		users:     repos.User,
		engine:    engine,
		dedup:     dedup,
		mailer:    mailer,
		publisher: publisher,
	}
}

func sentKey(purchaseID uint) string {
	return fmt.Sprintf("reminder:sent:%d", purchaseID)
}

// Run scans approved purchases whose cached end date is close and sends the
// reminders that are due. Errors on single purchases are logged and counted.
func (j *Job) Run(ctx context.Context) (Stats, error) {
	now := j.engine.Now()
	candidates, err := j.purchases.ListApprovedEndingBetween(ctx, now, now.Add(Window))
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, p := range candidates {
		stats.Scanned++
		sent, err := j.remind(ctx, p)
		switch {
		case err != nil:
			stats.Failed++
			log.Errorf("[Reminder] Purchase %d: %v", p.ID, err)
		case sent:
			stats.Sent++
		default:
			stats.Skipped++
		}
	}
	log.Infof("[Reminder] Run finished: scanned=%d sent=%d skipped=%d failed=%d", stats.Scanned, stats.Sent, stats.Skipped, stats.Failed)
	return stats, nil
}

func (j *Job) remind(ctx context.Context, p models.Purchase) (bool, error) {
	ent, err := j.engine.EvaluatePurchase(ctx, p)
	if err != nil {
		return false, err
	}
	if ent.Status != entitlements.StatusExpiring {
		return false, nil
	}

	user, err := j.users.GetByID(ctx, p.UserID)
	if err != nil {
		return false, err
	}
	if user.Email == "" || !user.IsActive() {
		return false, nil
	}

	key := sentKey(p.ID)
	first, err := j.dedup.SetNX(ctx, key, j.engine.Now().Unix(), SentTTL)
	if err != nil {
		return false, err
	}
	if !first {
		return false, nil
	}

	subject, body := renderReminder(user, ent)
	if err := j.mailer.Send(ctx, user.Email, subject, body); err != nil {
		if delErr := j.dedup.Delete(ctx, key); delErr != nil {
			log.Warnf("[Reminder] Could not release %s: %v", key, delErr)
		}
		return false, err
	}

	env := events.NewEnvelope(events.KeyReminderSent, j.engine.Now(), ent)
	if err := j.publisher.PublishJSON(ctx, events.KeyReminderSent, env); err != nil {
		log.Errorf("[Reminder] Failed to publish reminder for purchase %d: %v", p.ID, err)
	}
	return true, nil
}

func renderReminder(user *models.User, ent entitlements.Entitlement) (string, string) {
	days := "day"
	if ent.RemainingDays != 1 {
		days = "days"
	}
	subject := fmt.Sprintf("Your course access ends in %d %s", ent.RemainingDays, days)
	end := ""
	if ent.AccessEndDate != nil {
		end = ent.AccessEndDate.Format("2006-01-02")
	}
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>your %s access (purchase #%d) ends on %s. Renew now to keep learning without interruption.</p>",
		user.Name, ent.PurchaseType, ent.PurchaseID, end,
	)
	return subject, body
}
