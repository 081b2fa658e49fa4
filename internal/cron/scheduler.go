// Package cron runs the background jobs: panel reconciliation and the
// conversation-state sweep.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"marzbot/internal/panel"
	"marzbot/internal/repository"
	"marzbot/internal/state"
)

const listPageSize = 200

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	accounts *repository.AccountRepository
	panel    panel.Client
	sweeper  Sweeper
	logger   *zap.Logger
}

// Sweeper is implemented by state stores that expire entries on demand.
// Stores with server-side expiry (Redis) pass nil.
type Sweeper interface {
	Sweep() int
}

// New creates a new cron scheduler.
func New(accounts *repository.AccountRepository, panelClient panel.Client, sweeper Sweeper, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		accounts: accounts,
		panel:    panelClient,
		sweeper:  sweeper,
		logger:   logger,
	}
}

// Start registers and starts all cron jobs. Reconciliation also runs once
// immediately, so a fresh deployment knows about existing panel accounts
// before the first tick.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler...")

	go s.reconcile()

	// Panel reconciliation - every 30 minutes
	s.cron.AddFunc("0 */30 * * * *", func() {
		s.logger.Debug("Running: panel reconciliation")
		s.reconcile()
	})

	if s.sweeper != nil {
		// Conversation state sweep - every 10 minutes
		s.cron.AddFunc("0 */10 * * * *", func() {
			if removed := s.sweeper.Sweep(); removed > 0 {
				s.logger.Debug("Swept expired conversation state", zap.Int("removed", removed))
			}
		})
	}

	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// reconcile mirrors the panel's account list into the local directory:
// unknown panel accounts are imported as unlinked rows, and local rows whose
// panel account vanished are removed. The panel owns account existence.
func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	onPanel := make(map[string]bool)
	imported := 0

	for offset := 0; ; offset += listPageSize {
		page, err := s.panel.ListAccounts(ctx, offset, listPageSize)
		if err != nil {
			s.logger.Error("panel account listing failed",
				zap.Int("offset", offset), zap.Error(err))
			return
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			acc := &page[i]
			onPanel[acc.Username] = true

			note := fmt.Sprintf("Auto-imported %s", time.Now().Format("2006-01-02"))
			created, err := s.accounts.UpsertAutoImported(acc.Username, acc.Status, note)
			if err != nil {
				s.logger.Error("account import failed",
					zap.String("username", acc.Username), zap.Error(err))
				continue
			}
			if created {
				imported++
			}
		}

		if len(page) < listPageSize {
			break
		}
	}

	// An empty listing is indistinguishable from a broken panel; never wipe
	// the local directory over it.
	if len(onPanel) == 0 {
		s.logger.Warn("panel returned no accounts, skipping removal pass")
		return
	}

	removed := 0
	known, err := s.accounts.ListUsernames()
	if err != nil {
		s.logger.Error("local account listing failed", zap.Error(err))
	} else {
		for _, username := range known {
			if onPanel[username] {
				continue
			}
			deleted, err := s.accounts.DeleteByUsername(username)
			if err != nil {
				s.logger.Error("stale account removal failed",
					zap.String("username", username), zap.Error(err))
				continue
			}
			if deleted {
				removed++
			}
		}
	}

	s.logger.Info("Panel reconciliation finished",
		zap.Int("on_panel", len(onPanel)),
		zap.Int("imported", imported),
		zap.Int("removed", removed))
}

var _ Sweeper = (*state.MemoryStore)(nil)
