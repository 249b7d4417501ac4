package controllers

import (
	"github.com/ManuelReschke/CourseGate/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseGate/internal/pkg/ledger"
	"github.com/ManuelReschke/CourseGate/internal/pkg/payments"
)

// Services bundles the domain services used by the HTTP handlers.
type Services struct {
	Ledger        *ledger.Service
	Engine        *entitlements.Engine
	Pricer        catalog.Pricer
	Payments      *payments.Service
	WebhookSecret string
}

var services *Services

// Configure installs the services for all handlers. It must run before the
// router is installed.
func Configure(s *Services) {
	services = s
}

func svc() *Services {
	if services == nil {
		panic("controllers: Configure was not called")
	}
	return services
}
