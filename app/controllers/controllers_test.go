package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/app/repository/repotest"
	"github.com/ManuelReschke/CourseGate/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseGate/internal/pkg/clock"
	"github.com/ManuelReschke/CourseGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseGate/internal/pkg/events"
	"github.com/ManuelReschke/CourseGate/internal/pkg/ledger"
	"github.com/ManuelReschke/CourseGate/internal/pkg/middleware"
	"github.com/ManuelReschke/CourseGate/internal/pkg/payments"
)

const webhookSecret = "whsec_test"

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

type testEnv struct {
	app    *fiber.App
	store  *repotest.Store
	user   models.User
	course models.Course
	combo  models.ComboBundle
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	store := repotest.NewStore()
	repos := store.Repositories()
	clk := clock.Fixed(now)

	ledgerSvc := ledger.NewService(repos, events.Noop{}, clk)
	Configure(&Services{
		Ledger:        ledgerSvc,
		Engine:        entitlements.NewEngine(repos.Purchase, repos.Combo, clk),
		Pricer:        catalog.NewResolver(repos.Combo, repos.Course),
		Payments:      payments.NewService(repos, ledgerSvc),
		WebhookSecret: webhookSecret,
	})

	env := &testEnv{store: store}
	env.user = store.AddUser(models.User{Name: "ada", Email: "ada@example.com", Role: models.ROLE_USER, Status: models.STATUS_ACTIVE, APIKeyHash: models.HashAPIKey("user-key")})
	store.AddUser(models.User{Name: "root", Role: models.ROLE_ADMIN, Status: models.STATUS_ACTIVE, APIKeyHash: models.HashAPIKey("admin-key")})
	env.course = store.AddCourse(models.Course{Title: "Go", Price: 1000})
	second := store.AddCourse(models.Course{Title: "SQL", Price: 2000})
	third := store.AddCourse(models.Course{Title: "K8s", Price: 3000})
	env.combo = store.AddCombo(models.ComboBundle{Name: "Backend", Duration: models.ComboDuration3Months, DiscountPercentage: 20, IsActive: true}, env.course.ID, second.ID, third.ID)

	auth := middleware.APIKeyAuthMiddleware(repos.User)
	app := fiber.New()
	app.Get("/combos/:id/pricing", HandleGetComboPricing)
	app.Post("/payments/webhook", HandlePaymentWebhook)
	app.Post("/purchases", auth, middleware.RequireAuth, HandleCreatePurchase)
	app.Get("/purchases", auth, middleware.RequireAuth, HandleListPurchases)
	app.Get("/courses/:id/entitlement", auth, middleware.RequireAuth, HandleGetEntitlement)
	app.Get("/courses/:id/access", auth, middleware.RequireAuth, HandleCheckAccess)
	app.Post("/admin/purchases/:id/settle", auth, middleware.RequireAdmin, HandleAdminSettlePurchase)
	app.Get("/admin/purchases", auth, middleware.RequireAdmin, HandleAdminListPurchases)
	env.app = app
	return env
}

func (e *testEnv) do(t *testing.T, method, path, apiKey string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) webhook(t *testing.T, payload string, signed bool) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/payments/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	if signed {
		req.Header.Set(payments.SignatureHeader, payments.Sign([]byte(payload), webhookSecret))
	}
	return e.send(t, req)
}

func TestComboPricing(t *testing.T) {
	env := newTestEnv(t, jan1)

	status, body := env.do(t, "GET", "/combos/"+itoa(env.combo.ID)+"/pricing", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 6000, body["original_total"])
	assert.EqualValues(t, 4800, body["effective_price"])
	assert.EqualValues(t, 1200, body["discount_amount"])
	assert.Len(t, body["courses"], 3)

	status, _ = env.do(t, "GET", "/combos/abc/pricing", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, "GET", "/combos/999/pricing", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	off := env.store.AddCombo(models.ComboBundle{Name: "Old", Duration: models.ComboDuration1Month}, env.course.ID)
	status, body = env.do(t, "GET", "/combos/"+itoa(off.ID)+"/pricing", "", nil)
	assert.Equal(t, fiber.StatusGone, status)
	assert.Equal(t, "combo_inactive", body["error"])
}

func TestPurchaseLifecycle(t *testing.T) {
	env := newTestEnv(t, jan1)
	courseURL := "/courses/" + itoa(env.course.ID)

	status, body := env.do(t, "GET", courseURL+"/access", "user-key", nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "You have not purchased this course", body["message"])

	status, body = env.do(t, "POST", "/purchases", "user-key", fiber.Map{"plan_type": "combo", "combo_bundle_id": env.combo.ID, "price": 4800})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "pending", body["payment_status"])
	purchaseID := uint(body["id"].(float64))

	status, body = env.do(t, "GET", courseURL+"/entitlement", "user-key", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "none", body["status"])
	assert.Equal(t, "pending", body["payment_status"])
	assert.Equal(t, false, body["has_access"])

	status, _ = env.do(t, "POST", "/admin/purchases/"+itoa(purchaseID)+"/settle", "user-key", fiber.Map{"outcome": "approved"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = env.do(t, "POST", "/admin/purchases/"+itoa(purchaseID)+"/settle", "admin-key", fiber.Map{"outcome": "approved"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "approved", body["payment_status"])
	assert.Equal(t, "2024-03-31T00:00:00Z", body["end_date"])

	status, body = env.do(t, "POST", "/admin/purchases/"+itoa(purchaseID)+"/settle", "admin-key", fiber.Map{"outcome": "rejected"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "already_settled", body["error"])

	status, body = env.do(t, "GET", courseURL+"/entitlement", "user-key", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "active", body["status"])
	assert.EqualValues(t, 90, body["remaining_days"])
	assert.EqualValues(t, 0, body["progress_percent"])
	assert.Equal(t, true, body["has_access"])

	status, body = env.do(t, "GET", courseURL+"/access", "user-key", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["access"])

	status, body = env.do(t, "GET", "/purchases", "user-key", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["purchases"], 1)

	status, body = env.do(t, "GET", "/admin/purchases?plan=combo", "admin-key", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["purchases"], 1)
}

func TestCreatePurchase_Validation(t *testing.T) {
	env := newTestEnv(t, jan1)

	tests := []struct {
		name string
		body fiber.Map
		want int
		code string
	}{
		{name: "missing plan", body: fiber.Map{"price": 100}, want: fiber.StatusBadRequest},
		{name: "unknown plan", body: fiber.Map{"plan_type": "weekly", "price": 100}, want: fiber.StatusUnprocessableEntity, code: "invalid_plan"},
		{name: "single on bundle", body: fiber.Map{"plan_type": "single", "combo_bundle_id": env.combo.ID, "price": 100}, want: fiber.StatusUnprocessableEntity, code: "invalid_plan"},
		{name: "zero price", body: fiber.Map{"plan_type": "quarterly", "price": 0}, want: fiber.StatusUnprocessableEntity, code: "invalid_entitlement_state"},
		{name: "course below catalog price", body: fiber.Map{"plan_type": "single", "course_id": env.course.ID, "price": 1}, want: fiber.StatusUnprocessableEntity, code: "price_below_catalog"},
		{name: "combo below effective price", body: fiber.Map{"plan_type": "combo", "combo_bundle_id": env.combo.ID, "price": 4799}, want: fiber.StatusUnprocessableEntity, code: "price_below_catalog"},
		{name: "unknown course", body: fiber.Map{"plan_type": "single", "course_id": 404, "price": 100}, want: fiber.StatusNotFound, code: "not_found"},
		{name: "quarterly", body: fiber.Map{"plan_type": "Quarterly", "price": 900}, want: fiber.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, "POST", "/purchases", "user-key", tt.body)
			assert.Equal(t, tt.want, status)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["error"])
			}
		})
	}

	status, _ := env.do(t, "POST", "/purchases", "", fiber.Map{"plan_type": "quarterly", "price": 900})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminEndpoints_Validation(t *testing.T) {
	env := newTestEnv(t, jan1)

	status, _ := env.do(t, "GET", "/admin/purchases", "admin-key", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, "POST", "/admin/purchases/1/settle", "admin-key", fiber.Map{"outcome": "refunded"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, "POST", "/admin/purchases/4242/settle", "admin-key", fiber.Map{"outcome": "approved"})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestExpiringAndExpiredAccess(t *testing.T) {
	env := newTestEnv(t, jan1.Add(89*entitlements.Day))
	env.store.AddPurchase(models.Purchase{
		UserID: env.user.ID, PlanType: models.PlanQuarterly, Price: 900,
		PaymentStatus: models.PaymentStatusApproved, StartDate: &jan1,
	})

	status, body := env.do(t, "GET", "/courses/"+itoa(env.course.ID)+"/entitlement", "user-key", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "expiring", body["status"])
	assert.EqualValues(t, 1, body["remaining_days"])
	assert.EqualValues(t, 99, body["progress_percent"])

	env = newTestEnv(t, jan1.Add(91*entitlements.Day))
	env.store.AddPurchase(models.Purchase{
		UserID: env.user.ID, PlanType: models.PlanQuarterly, Price: 900,
		PaymentStatus: models.PaymentStatusApproved, StartDate: &jan1,
	})
	status, body = env.do(t, "GET", "/courses/"+itoa(env.course.ID)+"/access", "user-key", nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "expired", body["status"])
	assert.Equal(t, "Your access has expired, renew to continue", body["message"])
}

func TestPaymentWebhook(t *testing.T) {
	env := newTestEnv(t, jan1)
	p := env.store.AddPurchase(models.Purchase{
		UserID: env.user.ID, PlanType: models.PlanSingle, CourseID: &env.course.ID, Price: 1000,
		PaymentStatus: models.PaymentStatusPending,
	})

	completed := `{"id":"evt_1","type":"payment.completed","data":{"purchase_id":` + itoa(p.ID) + `,"amount":1000}}`

	status, body := env.webhook(t, completed, false)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid_signature", body["error"])
	purchase := env.store.Purchase(p.ID)
	assert.True(t, purchase.IsPending())

	status, body = env.webhook(t, completed, true)
	require.Equal(t, fiber.StatusOK, status)
	assert.Nil(t, body["duplicate"])
	purchase = env.store.Purchase(p.ID)
	assert.True(t, purchase.IsApproved())

	status, body = env.webhook(t, completed, true)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	status, body = env.webhook(t, completed, false)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid_signature", body["error"])

	late := `{"id":"evt_3","type":"payment.failed","data":{"purchase_id":` + itoa(p.ID) + `}}`
	status, body = env.webhook(t, late, true)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])
	purchase = env.store.Purchase(p.ID)
	assert.True(t, purchase.IsApproved())
}

func TestPaymentWebhook_AmountMismatchAndBadPayload(t *testing.T) {
	env := newTestEnv(t, jan1)
	p := env.store.AddPurchase(models.Purchase{
		UserID: env.user.ID, PlanType: models.PlanSingle, CourseID: &env.course.ID, Price: 1000,
		PaymentStatus: models.PaymentStatusPending,
	})

	short := `{"id":"evt_9","type":"payment.completed","data":{"purchase_id":` + itoa(p.ID) + `,"amount":10}}`
	status, body := env.webhook(t, short, true)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "amount_mismatch", body["error"])
	purchase := env.store.Purchase(p.ID)
	assert.True(t, purchase.IsPending())

	status, _ = env.webhook(t, `{not json`, true)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = env.webhook(t, `{"id":"evt_10","type":"payment.refunded","data":{"purchase_id":1}}`, true)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ignored"])
}
