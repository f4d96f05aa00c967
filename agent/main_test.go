package main

import (
	"testing"
	"time"

	"github.com/haasonsaas/wlanboot/pkg/config"
	"github.com/haasonsaas/wlanboot/pkg/retry"
	"github.com/haasonsaas/wlanboot/pkg/supervisor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDefaultsMatchPackageDefaults(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, supervisor.DefaultTimings(), timingsFromConfig(cfg.Timing))

	b := budgetsFromConfig(cfg.Budgets)
	assert.Equal(t, retry.ActivateBudget, b.Activate)
	assert.Equal(t, retry.DeactivateBudget, b.Deactivate)
	assert.Equal(t, retry.ConnectBudget, b.Connect)
	assert.Equal(t, retry.TimeSyncBudget, budget(cfg.Budgets.TimeSync))
}

func TestBudgetConversion(t *testing.T) {
	assert.Equal(t, retry.Budget{Attempts: 3, Delay: 250 * time.Millisecond}, budget(config.BudgetConfig{Attempts: 3, DelayMs: 250}))
}

func TestApplyAgentLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	applyAgentLogging(config.LoggingConfig{Level: "DEBUG", JSON: true})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	applyAgentLogging(config.LoggingConfig{Level: "bogus"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
