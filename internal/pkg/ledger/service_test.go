package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/app/repository/repotest"
	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
	"github.com/ManuelReschke/CourseGate/internal/pkg/clock"
	"github.com/ManuelReschke/CourseGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseGate/internal/pkg/events"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ptrUint(v uint) *uint { return &v }

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	msgs []any
	err  error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.msgs = append(p.msgs, v)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	store     *repotest.Store
	publisher *recordingPublisher
	svc       *Service
	course    models.Course
	bundle    models.ComboBundle
}

func newFixture(now time.Time) *fixture {
	store := repotest.NewStore()
	course := store.AddCourse(models.Course{Title: "Go", Price: 1000})
	other := store.AddCourse(models.Course{Title: "SQL", Price: 2000})
	bundle := store.AddCombo(models.ComboBundle{Name: "Backend", Duration: models.ComboDuration3Months, IsActive: true}, course.ID, other.ID)
	pub := &recordingPublisher{}
	return &fixture{
		store:     store,
		publisher: pub,
		svc:       NewService(store.Repositories(), pub, clock.Fixed(now)),
		course:    course,
		bundle:    bundle,
	}
}

func TestRecordPurchase_TargetRules(t *testing.T) {
	f := newFixture(jan1)
	course := ptrUint(f.course.ID)
	bundle := ptrUint(f.bundle.ID)

	tests := []struct {
		name    string
		plan    string
		target  Target
		wantErr error
	}{
		{name: "single on course", plan: models.PlanSingle, target: Target{CourseID: course}},
		{name: "single on bundle", plan: models.PlanSingle, target: Target{ComboBundleID: bundle}, wantErr: apperr.ErrInvalidPlan},
		{name: "single without target", plan: models.PlanSingle, wantErr: apperr.ErrInvalidPlan},
		{name: "combo on bundle", plan: models.PlanCombo, target: Target{ComboBundleID: bundle}},
		{name: "combo on course", plan: models.PlanCombo, target: Target{CourseID: course}, wantErr: apperr.ErrInvalidPlan},
		{name: "quarterly all access", plan: models.PlanQuarterly},
		{name: "quarterly with course", plan: models.PlanQuarterly, target: Target{CourseID: course}, wantErr: apperr.ErrInvalidPlan},
		{name: "kit on course", plan: models.PlanKit, target: Target{CourseID: course}},
		{name: "school on bundle", plan: models.PlanSchool, target: Target{ComboBundleID: bundle}},
		{name: "kit on both", plan: models.PlanKit, target: Target{CourseID: course, ComboBundleID: bundle}, wantErr: apperr.ErrInvalidPlan},
		{name: "school without target", plan: models.PlanSchool, wantErr: apperr.ErrInvalidPlan},
		{name: "unknown plan", plan: "monthly", target: Target{CourseID: course}, wantErr: apperr.ErrInvalidPlan},
		{name: "missing course", plan: models.PlanSingle, target: Target{CourseID: ptrUint(9999)}, wantErr: apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.svc.RecordPurchase(context.Background(), 1, tt.plan, tt.target, 5000)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, p.ID)
			assert.Equal(t, models.PaymentStatusPending, p.PaymentStatus)
			assert.Nil(t, p.StartDate)
			assert.Nil(t, p.EndDate)
		})
	}
}

func TestRecordPurchase_RejectsNonPositivePrice(t *testing.T) {
	f := newFixture(jan1)
	for _, price := range []int64{0, -100} {
		_, err := f.svc.RecordPurchase(context.Background(), 1, models.PlanSingle, Target{CourseID: ptrUint(f.course.ID)}, price)
		assert.ErrorIs(t, err, apperr.ErrInvalidEntitlementState, "price %d", price)
	}
}

func TestRecordPurchase_PriceMustCoverCatalog(t *testing.T) {
	f := newFixture(jan1)
	ctx := context.Background()
	discounted := f.store.AddCombo(models.ComboBundle{Name: "Sale", Duration: models.ComboDurationLifetime, DiscountPercentage: 25, IsActive: true}, f.course.ID)

	tests := []struct {
		name    string
		plan    string
		target  Target
		price   int64
		wantErr error
	}{
		{name: "course at list price", plan: models.PlanSingle, target: Target{CourseID: ptrUint(f.course.ID)}, price: 1000},
		{name: "course below list price", plan: models.PlanSingle, target: Target{CourseID: ptrUint(f.course.ID)}, price: 1, wantErr: apperr.ErrPriceBelowCatalog},
		{name: "kit course below list price", plan: models.PlanKit, target: Target{CourseID: ptrUint(f.course.ID)}, price: 999, wantErr: apperr.ErrPriceBelowCatalog},
		{name: "bundle at parts total", plan: models.PlanCombo, target: Target{ComboBundleID: ptrUint(f.bundle.ID)}, price: 3000},
		{name: "bundle below parts total", plan: models.PlanCombo, target: Target{ComboBundleID: ptrUint(f.bundle.ID)}, price: 2999, wantErr: apperr.ErrPriceBelowCatalog},
		{name: "discounted bundle at effective price", plan: models.PlanSchool, target: Target{ComboBundleID: ptrUint(discounted.ID)}, price: 750},
		{name: "discounted bundle below effective price", plan: models.PlanCombo, target: Target{ComboBundleID: ptrUint(discounted.ID)}, price: 749, wantErr: apperr.ErrPriceBelowCatalog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.svc.RecordPurchase(ctx, 1, tt.plan, tt.target, tt.price)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.price, p.Price)
		})
	}
}

func TestRecordPurchase_InactiveBundle(t *testing.T) {
	f := newFixture(jan1)
	off := f.store.AddCombo(models.ComboBundle{Name: "Old", Duration: models.ComboDuration1Month}, f.course.ID)

	_, err := f.svc.RecordPurchase(context.Background(), 1, models.PlanCombo, Target{ComboBundleID: ptrUint(off.ID)}, 500)
	assert.ErrorIs(t, err, apperr.ErrComboInactive)
}

func TestSettlePurchase_ApprovedSetsWindow(t *testing.T) {
	now := jan1.Add(3 * time.Hour)
	f := newFixture(now)
	ctx := context.Background()

	quarterly, err := f.svc.RecordPurchase(ctx, 1, models.PlanQuarterly, Target{}, 900)
	require.NoError(t, err)
	single, err := f.svc.RecordPurchase(ctx, 1, models.PlanSingle, Target{CourseID: ptrUint(f.course.ID)}, 1000)
	require.NoError(t, err)
	combo, err := f.svc.RecordPurchase(ctx, 1, models.PlanCombo, Target{ComboBundleID: ptrUint(f.bundle.ID)}, 3000)
	require.NoError(t, err)

	settled, err := f.svc.SettlePurchase(ctx, quarterly.ID, OutcomeApproved)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, settled.PaymentStatus)
	require.NotNil(t, settled.StartDate)
	assert.True(t, settled.StartDate.Equal(now))
	require.NotNil(t, settled.EndDate)
	assert.True(t, settled.EndDate.Equal(now.Add(90*entitlements.Day)))

	settled, err = f.svc.SettlePurchase(ctx, single.ID, OutcomeApproved)
	require.NoError(t, err)
	assert.Nil(t, settled.EndDate)

	settled, err = f.svc.SettlePurchase(ctx, combo.ID, OutcomeApproved)
	require.NoError(t, err)
	require.NotNil(t, settled.EndDate)
	assert.True(t, settled.EndDate.Equal(now.Add(90*entitlements.Day)))

	stored := f.store.Purchase(quarterly.ID)
	assert.Equal(t, models.PaymentStatusApproved, stored.PaymentStatus)
	require.NotNil(t, stored.SettledAt)
}

func TestSettlePurchase_Rejected(t *testing.T) {
	f := newFixture(jan1)
	ctx := context.Background()
	p, err := f.svc.RecordPurchase(ctx, 1, models.PlanSingle, Target{CourseID: ptrUint(f.course.ID)}, 1000)
	require.NoError(t, err)

	settled, err := f.svc.SettlePurchase(ctx, p.ID, OutcomeRejected)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRejected, settled.PaymentStatus)
	assert.Nil(t, settled.StartDate)
	assert.Nil(t, settled.EndDate)

	_, err = f.svc.SettlePurchase(ctx, p.ID, OutcomeApproved)
	assert.ErrorIs(t, err, apperr.ErrAlreadySettled)
	assert.Equal(t, models.PaymentStatusRejected, f.store.Purchase(p.ID).PaymentStatus)
}

func TestSettlePurchase_UnknownOutcomeAndMissingPurchase(t *testing.T) {
	f := newFixture(jan1)
	ctx := context.Background()

	_, err := f.svc.SettlePurchase(ctx, 1, "refunded")
	assert.ErrorIs(t, err, apperr.ErrInvalidPlan)

	_, err = f.svc.SettlePurchase(ctx, 4242, OutcomeApproved)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSettlePurchase_ConcurrentSettlementWinsOnce(t *testing.T) {
	f := newFixture(jan1)
	ctx := context.Background()
	p, err := f.svc.RecordPurchase(ctx, 1, models.PlanQuarterly, Target{}, 900)
	require.NoError(t, err)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := OutcomeApproved
			if i%2 == 1 {
				outcome = OutcomeRejected
			}
			_, err := f.svc.SettlePurchase(ctx, p.ID, outcome)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperr.ErrAlreadySettled):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflict)
	assert.Len(t, f.publisher.keys, 1)
	purchase := f.store.Purchase(p.ID)
	assert.False(t, purchase.IsPending())
}

func TestSettlePurchase_PublishesEvent(t *testing.T) {
	f := newFixture(jan1)
	ctx := context.Background()
	p, err := f.svc.RecordPurchase(ctx, 5, models.PlanSingle, Target{CourseID: ptrUint(f.course.ID)}, 1000)
	require.NoError(t, err)

	_, err = f.svc.SettlePurchase(ctx, p.ID, OutcomeApproved)
	require.NoError(t, err)

	require.Len(t, f.publisher.msgs, 1)
	assert.Equal(t, events.KeyPurchaseSettled, f.publisher.keys[0])
	env, ok := f.publisher.msgs[0].(events.Envelope)
	require.True(t, ok)
	payload, ok := env.Data.(SettledEvent)
	require.True(t, ok)
	assert.Equal(t, p.ID, payload.PurchaseID)
	assert.Equal(t, uint(5), payload.UserID)
	assert.Equal(t, models.PaymentStatusApproved, payload.PaymentStatus)
}

func TestSettlePurchase_PublishFailureDoesNotUndoSettlement(t *testing.T) {
	f := newFixture(jan1)
	f.publisher.err = errors.New("broker down")
	ctx := context.Background()
	p, err := f.svc.RecordPurchase(ctx, 1, models.PlanQuarterly, Target{}, 900)
	require.NoError(t, err)

	_, err = f.svc.SettlePurchase(ctx, p.ID, OutcomeApproved)
	require.NoError(t, err)
	purchase := f.store.Purchase(p.ID)
	assert.True(t, purchase.IsApproved())
}

func TestListByPlanType(t *testing.T) {
	f := newFixture(jan1)
	ctx := context.Background()
	_, err := f.svc.RecordPurchase(ctx, 1, models.PlanQuarterly, Target{}, 900)
	require.NoError(t, err)
	_, err = f.svc.RecordPurchase(ctx, 2, models.PlanQuarterly, Target{}, 900)
	require.NoError(t, err)
	_, err = f.svc.RecordPurchase(ctx, 1, models.PlanSingle, Target{CourseID: ptrUint(f.course.ID)}, 1000)
	require.NoError(t, err)

	quarterly, err := f.svc.ListByPlanType(ctx, models.PlanQuarterly)
	require.NoError(t, err)
	assert.Len(t, quarterly, 2)

	mine, err := f.svc.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.Greater(t, mine[0].ID, mine[1].ID)

	_, err = f.svc.ListByPlanType(ctx, "weekly")
	assert.ErrorIs(t, err, apperr.ErrInvalidPlan)
}
