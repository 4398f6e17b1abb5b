package jobs

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// RELOAD TIERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// TierReloader re-reads the tier configuration. *tierconfig.Registry implements it.
type TierReloader interface {
	Reload() error
}

// ReloadTiersJob picks up edits to the tier configuration file without a
// restart. A failed reload keeps the previous tables active.
type ReloadTiersJob struct {
	reloader TierReloader
}

// NewReloadTiersJob creates the job.
func NewReloadTiersJob(reloader TierReloader) *ReloadTiersJob {
	return &ReloadTiersJob{reloader: reloader}
}

// Name returns the job name.
func (j *ReloadTiersJob) Name() string {
	return "reload_tiers"
}

// Description returns a human-readable description.
func (j *ReloadTiersJob) Description() string {
	return "Reloads tier role definitions from the configuration file"
}

// Run reloads the configuration.
func (j *ReloadTiersJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.reloader.Reload()
}
