// Package repotest provides in-memory repositories for tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/app/repository"
	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
)

// Store backs every in-memory repository with a single mutex.
type Store struct {
	mu        sync.Mutex
	courses   map[uint]models.Course
	combos    map[uint]models.ComboBundle
	purchases map[uint]models.Purchase
	users     map[uint]models.User
	events    map[uint]models.PaymentEvent
	nextID    uint
}

func NewStore() *Store {
	return &Store{
		courses:   make(map[uint]models.Course),
		combos:    make(map[uint]models.ComboBundle),
		purchases: make(map[uint]models.Purchase),
		users:     make(map[uint]models.User),
		events:    make(map[uint]models.PaymentEvent),
	}
}

// Repositories returns repository views over the store.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Course:       Courses{s},
		Combo:        Combos{s},
		Purchase:     Purchases{s},
		User:         Users{s},
		PaymentEvent: PaymentEvents{s},
	}
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

func (s *Store) AddCourse(c models.Course) models.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	s.courses[c.ID] = c
	return c
}

// AddCombo stores the bundle with member rows for courseIDs in order.
func (s *Store) AddCombo(b models.ComboBundle, courseIDs ...uint) models.ComboBundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.id()
	}
	b.Items = nil
	for i, id := range courseIDs {
		b.Items = append(b.Items, models.ComboBundleCourse{
			ID:            s.id(),
			ComboBundleID: b.ID,
			CourseID:      id,
			Position:      i,
		})
	}
	s.combos[b.ID] = b
	return b
}

// UpdateCombo replaces bundle fields while keeping its member rows.
func (s *Store) UpdateCombo(b models.ComboBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Items = s.combos[b.ID].Items
	s.combos[b.ID] = b
}

func (s *Store) AddPurchase(p models.Purchase) models.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, int(p.ID), time.UTC)
	}
	s.purchases[p.ID] = p
	return p
}

func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) Purchase(id uint) models.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchases[id]
}

func (s *Store) Event(id uint) models.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id]
}

type Courses struct{ s *Store }

func (r Courses) GetByID(_ context.Context, id uint) (*models.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok {
		return nil, fmt.Errorf("course %d: %w", id, apperr.ErrNotFound)
	}
	return &c, nil
}

func (r Courses) GetByIDs(_ context.Context, ids []uint) ([]models.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Course
	for _, id := range ids {
		if c, ok := r.s.courses[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type Combos struct{ s *Store }

func (r Combos) GetByID(_ context.Context, id uint) (*models.ComboBundle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.combos[id]
	if !ok {
		return nil, fmt.Errorf("combo bundle %d: %w", id, apperr.ErrNotFound)
	}
	items := make([]models.ComboBundleCourse, len(b.Items))
	copy(items, b.Items)
	b.Items = items
	return &b, nil
}

type Purchases struct{ s *Store }

func (r Purchases) Create(_ context.Context, p *models.Purchase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.id()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	r.s.purchases[p.ID] = *p
	return nil
}

func (r Purchases) GetByID(_ context.Context, id uint) (*models.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.purchases[id]
	if !ok {
		return nil, fmt.Errorf("purchase %d: %w", id, apperr.ErrNotFound)
	}
	return &p, nil
}

func (r Purchases) list(match func(models.Purchase) bool) []models.Purchase {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Purchase
	for _, p := range r.s.purchases {
		if match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r Purchases) ListByUser(_ context.Context, userID uint) ([]models.Purchase, error) {
	return r.list(func(p models.Purchase) bool { return p.UserID == userID }), nil
}

func (r Purchases) ListByPlanType(_ context.Context, planType string) ([]models.Purchase, error) {
	return r.list(func(p models.Purchase) bool { return p.PlanType == planType }), nil
}

func (r Purchases) ListApprovedEndingBetween(_ context.Context, from, to time.Time) ([]models.Purchase, error) {
	return r.list(func(p models.Purchase) bool {
		return p.IsApproved() && p.EndDate != nil && !p.EndDate.Before(from) && p.EndDate.Before(to)
	}), nil
}

func (r Purchases) Settle(_ context.Context, id uint, u repository.SettleUpdate) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.purchases[id]
	if !ok || !p.IsPending() {
		return false, nil
	}
	settledAt := u.SettledAt
	p.PaymentStatus = u.PaymentStatus
	p.StartDate = u.StartDate
	p.EndDate = u.EndDate
	p.SettledAt = &settledAt
	r.s.purchases[id] = p
	return true, nil
}

type Users struct{ s *Store }

func (r Users) GetByID(_ context.Context, id uint) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
	}
	return &u, nil
}

func (r Users) GetByAPIKeyHash(_ context.Context, hash string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.HasActiveAPIKey() && u.APIKeyHash == hash {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user with api key: %w", apperr.ErrNotFound)
}

type PaymentEvents struct{ s *Store }

func (r PaymentEvents) CreateIfNotExists(_ context.Context, e *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.events {
		if existing.Provider == e.Provider && existing.ProviderEventID == e.ProviderEventID {
			stored := existing
			return false, &stored, nil
		}
	}
	e.ID = r.s.id()
	r.s.events[e.ID] = *e
	stored := *e
	return true, &stored, nil
}

func (r PaymentEvents) MarkProcessed(_ context.Context, id uint, processingError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return fmt.Errorf("payment event %d: %w", id, apperr.ErrNotFound)
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	r.s.events[id] = e
	return nil
}
