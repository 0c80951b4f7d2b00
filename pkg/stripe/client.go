package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/logger"
)

// Mode is the Stripe account mode a secret key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var errAPIKeyRequired = errors.New("stripe api key is required")

// Client holds the process-wide Stripe configuration. stripe-go keeps its key
// and backends in package state, so only one Client should exist per process.
type Client struct {
	mode    Mode
	retries int64
}

// NewClient checks the key against the configured mode and installs it, along
// with a retrying backend that logs through logg.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	want, err := ParseMode(cfg.Env)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	got, ok := KeyMode(key)
	if !ok {
		return nil, errors.New("stripe api key must be a secret or restricted key")
	}
	if got != want {
		return nil, fmt.Errorf("stripe %s mode cannot use a %s key", want, got)
	}

	retries := int64(cfg.MaxNetworkRetries)
	stripe.Key = key
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(retries),
		LeveledLogger:     &leveledLogger{ctx: logg.WithField(ctx, "component", "stripe"), logg: logg},
	}))

	logg.Info(logg.WithFields(ctx, map[string]any{"stripe_mode": string(got), "stripe_retries": retries}), "stripe configured")
	return &Client{mode: got, retries: retries}, nil
}

// Mode reports the account mode of the installed key.
func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// ParseMode accepts "test" or "live", defaulting blank to test.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeTest, nil
	case ModeTest, ModeLive:
		return m, nil
	default:
		return "", fmt.Errorf("stripe environment must be %q or %q, got %q", ModeTest, ModeLive, raw)
	}
}

// KeyMode derives the mode from a secret (sk_) or restricted (rk_) key prefix.
func KeyMode(key string) (Mode, bool) {
	kind, rest, found := strings.Cut(key, "_")
	if !found || (kind != "sk" && kind != "rk") {
		return "", false
	}
	switch {
	case strings.HasPrefix(rest, "test_"):
		return ModeTest, true
	case strings.HasPrefix(rest, "live_"):
		return ModeLive, true
	default:
		return "", false
	}
}

// leveledLogger forwards stripe-go's internal logging. Debug and info are
// dropped; request lines would otherwise flood the worker logs.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l *leveledLogger) Debugf(string, ...any) {}

func (l *leveledLogger) Infof(string, ...any) {}

func (l *leveledLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.ctx, fmt.Sprintf(format, v...), nil)
}
