package transfers

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/metrics"
	pkgstripe "github.com/angelmondragon/escrowledger/pkg/stripe"
)

const ProviderSandbox = "sandbox"

// NewFromConfig picks the transfer provider for the process and wraps it in the
// circuit breaker. Development without a Stripe key falls back to the sandbox;
// every other environment requires the key.
func NewFromConfig(ctx context.Context, cfg *config.Config, logg *logger.Logger, conn *gorm.DB, m *metrics.TransferMetrics) (*BreakerCreator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if strings.TrimSpace(cfg.Stripe.APIKey) == "" {
		if !cfg.App.IsDev() {
			return nil, fmt.Errorf("stripe api key required outside %s", config.AppEnvDev)
		}
		if logg != nil {
			logg.Warn(ctx, "no stripe key configured, using sandbox transfers")
		}
		return NewBreakerCreator(NewSandboxCreator(), ProviderSandbox, cfg.Transfers, m)
	}

	if conn == nil {
		return nil, fmt.Errorf("database required for payout accounts")
	}
	client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}
	creator, err := NewStripeCreator(NewStripeTransferAPI(client), NewAccountRepository(conn))
	if err != nil {
		return nil, err
	}
	return NewBreakerCreator(creator, ProviderStripe, cfg.Transfers, m)
}
