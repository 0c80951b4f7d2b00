package transfers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/config"
)

func TestNewFromConfig_SandboxInDevWithoutKey(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvDev}}
	creator, err := NewFromConfig(context.Background(), cfg, nil, nil, nil)
	require.NoError(t, err)

	req := validRequest()
	id, err := creator.CreateTransfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "tr_sandbox_"+req.IdempotencyKey, id)
}

func TestNewFromConfig_KeyRequiredOutsideDev(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvProd}}
	_, err := NewFromConfig(context.Background(), cfg, nil, nil, nil)
	require.Error(t, err)
}

func TestNewFromConfig_StripeKeyMustMatchEnvironment(t *testing.T) {
	cfg := &config.Config{
		App:    config.AppConfig{Env: config.AppEnvProd},
		Stripe: config.StripeConfig{APIKey: "sk_live_abc", Env: "test"},
	}
	_, err := NewFromConfig(context.Background(), cfg, nil, &gorm.DB{}, nil)
	require.Error(t, err)

	cfg.Stripe.APIKey = "sk_test_abc"
	creator, err := NewFromConfig(context.Background(), cfg, nil, &gorm.DB{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, creator)
}
