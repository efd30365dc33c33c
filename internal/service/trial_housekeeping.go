package service

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/pkg/jobs"
)

// TrialExpiryJobType identifies the periodic trial expiry job.
const TrialExpiryJobType = "trial_expiry"

type trialAcademyLister interface {
	ListTrialAcademies(ctx context.Context) ([]string, error)
}

type trialExpirer interface {
	ExpireTrials(ctx context.Context, academyID string) (*ExpireTrialsResult, error)
}

// TrialHousekeeper expires elapsed trials on behalf of the job queue. A job
// payload naming an academy limits the run to it; otherwise every academy
// with trial students is visited.
type TrialHousekeeper struct {
	academies trialAcademyLister
	expirer   trialExpirer
	logger    *zap.Logger
}

// NewTrialHousekeeper constructs TrialHousekeeper.
func NewTrialHousekeeper(academies trialAcademyLister, expirer trialExpirer, logger *zap.Logger) *TrialHousekeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrialHousekeeper{academies: academies, expirer: expirer, logger: logger}
}

// Handle implements jobs.Handler.
func (h *TrialHousekeeper) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != TrialExpiryJobType {
		return fmt.Errorf("unsupported job type %q", job.Type)
	}
	academyIDs, err := h.targets(ctx, job)
	if err != nil {
		return err
	}

	var errs error
	expired := 0
	for _, academyID := range academyIDs {
		result, err := h.expirer.ExpireTrials(ctx, academyID)
		if result != nil {
			expired += len(result.Expired)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("academy %s: %w", academyID, err))
		}
	}
	h.logger.Info("trial housekeeping finished",
		zap.String("job_id", job.ID),
		zap.Int("academies", len(academyIDs)),
		zap.Int("expired", expired),
		zap.Int("failures", len(multierr.Errors(errs))),
	)
	return errs
}

func (h *TrialHousekeeper) targets(ctx context.Context, job jobs.Job) ([]string, error) {
	if academyID, ok := job.Payload.(string); ok && academyID != "" {
		return []string{academyID}, nil
	}
	academyIDs, err := h.academies.ListTrialAcademies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trial academies: %w", err)
	}
	return academyIDs, nil
}
