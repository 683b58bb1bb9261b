package engagement

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gitquest/gitquest/internal/domain"
)

// Config carries the knobs shared by every engine service.
type Config struct {
	Calendar         Calendar
	DailyChallenges  int
	WeeklyChallenges int
	ClaimedLimit     int
	HistoryLimit     int

	// Clock returns the current time. Tests pin it.
	Clock func() time.Time
	// Seed for challenge selection. Zero seeds from the clock.
	Seed   int64
	Logger logrus.FieldLogger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Calendar:         NewCalendar(DefaultUTCOffset),
		DailyChallenges:  3,
		WeeklyChallenges: 1,
		ClaimedLimit:     20,
		HistoryLimit:     20,
		Clock:            time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Calendar.loc == nil {
		c.Calendar = d.Calendar
	}
	if c.DailyChallenges <= 0 {
		c.DailyChallenges = d.DailyChallenges
	}
	if c.WeeklyChallenges <= 0 {
		c.WeeklyChallenges = d.WeeklyChallenges
	}
	if c.ClaimedLimit <= 0 {
		c.ClaimedLimit = d.ClaimedLimit
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.Logger = l
	}
	return c
}

// ─── Error Wrapping ─────────────────────────────────────────────────────────

// storeErr marks a driver error as a persistence failure.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// txErr passes domain errors through and marks everything else as a
// persistence failure.
func txErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrPersistence,
		domain.ErrNotFound,
		domain.ErrUnknownRepo,
		domain.ErrInvalidInput,
		domain.ErrInvalidState,
		domain.ErrAlreadyClaimed,
		domain.ErrAlreadyUnlocked,
		domain.ErrInvalidAmount,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return storeErr(op, err)
}
