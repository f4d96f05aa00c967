package wlan

import (
	"errors"
	"slices"

	"github.com/haasonsaas/wlanboot/pkg/retry"
	"github.com/haasonsaas/wlanboot/pkg/secrets"
	"github.com/rs/zerolog"
)

// Budgets for the controller's bounded waits.
type Budgets struct {
	Activate   retry.Budget
	Deactivate retry.Budget
	Connect    retry.Budget
}

// DefaultBudgets polls once per second: 5 times for (de)activation and 30
// times for a station connection.
func DefaultBudgets() Budgets {
	return Budgets{
		Activate:   retry.ActivateBudget,
		Deactivate: retry.DeactivateBudget,
		Connect:    retry.ConnectBudget,
	}
}

// Controller drives the radio with timeout-bounded operations.
type Controller struct {
	store   SecretStore
	budgets Budgets
	logger  zerolog.Logger
}

func NewController(store SecretStore, budgets Budgets, logger zerolog.Logger) *Controller {
	return &Controller{
		store:   store,
		budgets: budgets,
		logger:  logger.With().Str("component", "wlan-controller").Logger(),
	}
}

// Activate switches the interface on and waits for it to report active or
// connected. Some radios never report active in station mode even when
// working, so running out of attempts is only logged.
func (c *Controller) Activate(w WLAN) {
	c.logger.Debug().Stringer("mode", w.Mode()).Msg("Activating network interface")
	if err := w.SetActive(true); err != nil {
		c.logger.Warn().Err(err).Msg("Activate request failed")
	}
	ok := c.budgets.Activate.Poll(func(int) bool {
		return w.Active() || w.Status() == StatusGotIP
	})
	if ok {
		c.logger.Debug().Stringer("mode", w.Mode()).Msg("Network interface active")
		return
	}
	c.logger.Debug().Stringer("mode", w.Mode()).Int("attempts", c.budgets.Activate.Attempts).
		Msg("Network interface did not report active")
}

// Deactivate switches the interface off and waits for confirmation. Like
// Activate it returns regardless of the outcome.
func (c *Controller) Deactivate(w WLAN) {
	c.logger.Debug().Stringer("mode", w.Mode()).Msg("Deactivating network interface")
	if err := w.SetActive(false); err != nil {
		c.logger.Warn().Err(err).Msg("Deactivate request failed")
	}
	ok := c.budgets.Deactivate.Poll(func(int) bool {
		return !w.Active()
	})
	if !ok {
		c.logger.Debug().Stringer("mode", w.Mode()).Int("attempts", c.budgets.Deactivate.Attempts).
			Msg("Network interface did not report inactive")
	}
}

// ConnectStation joins the network named by the stored station
// credentials. Unlike Activate, running out of attempts is a failure: a
// *ConnectionError is returned for every reason the station cannot come up.
// Any other error comes from reading the secrets store.
func (c *Controller) ConnectStation(w WLAN) error {
	ssid, err := c.store.Get(secrets.WLANSSID)
	if err != nil {
		return err
	}
	passwd, err := c.store.Get(secrets.WLANPassword)
	if err != nil {
		return err
	}
	if ssid == "" {
		c.logger.Info().Msg("Network SSID secret not set")
		return &ConnectionError{Reason: ReasonNoCredentials}
	}

	visible, err := w.Scan()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Network scan failed")
		return &ConnectionError{Reason: ReasonSSIDUnavailable, SSID: ssid, Err: err}
	}
	if !slices.Contains(visible, ssid) {
		c.logger.Info().Str("ssid", ssid).Strs("available", visible).Msg("Network SSID not available")
		return &ConnectionError{Reason: ReasonSSIDUnavailable, SSID: ssid}
	}

	c.logger.Info().Str("ssid", ssid).Msg("Connecting to network")
	if err := w.Connect(ssid, passwd); err != nil {
		c.logger.Warn().Err(err).Str("ssid", ssid).Msg("Connect request rejected")
		if errors.Is(err, ErrNotStation) {
			return &ConnectionError{Reason: ReasonRejected, SSID: ssid}
		}
		return &ConnectionError{Reason: ReasonRejected, SSID: ssid, Err: err}
	}

	ok := c.budgets.Connect.Poll(func(attempt int) bool {
		status := w.Status()
		c.logger.Debug().Int("attempt", attempt+1).Stringer("status", status).Msg("Waiting for connection")
		return status == StatusGotIP || w.IsConnected()
	})
	if !ok {
		c.logger.Warn().Str("ssid", ssid).Stringer("status", w.Status()).Msg("Failed to connect")
		return &ConnectionError{Reason: ReasonTimeout, SSID: ssid}
	}
	return nil
}
