package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/epivar-cloud/epivar/internal/metrics"
	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/pkg/log"
)

// Run executes the study's full stage chain. The first stage
// flips the study to running; any stage error flips it to
// failed immediately and skips the rest; the final stage
// flips it to passed. Every non-failure transition records
// the executing stage-run ID on the study, while the failure
// transition records status and detail only. When the run
// holds a node lease, each transition renews it; losing the
// lease aborts the run with ErrLeaseLost and leaves the row
// to the node that took it over.
func (p *Pipeline) Run(ctx context.Context, studyID uuid.UUID) error {
	study, err := p.loadStudy(ctx, studyID)
	if err != nil {
		return err
	}
	if study.Status.Terminal() {
		return errors.Wrapf(ErrTerminalStudy, "%s is %s", study.StudyID, study.Status)
	}

	stages, err := Definition(study.Kind)
	if err != nil {
		p.fail(ctx, study, err)
		return err
	}

	for _, stage := range stages {
		if err := p.runStage(ctx, study, stage); err != nil {
			if errors.Is(err, ErrLeaseLost) {
				// the study's new owner drives it now; writing a
				// failure here would clobber its progress
				return err
			}
			p.fail(ctx, study, err)
			metrics.StudyRunsTotal.WithLabelValues(string(study.Kind), string(models.IntegrationFailed)).Inc()
			return errors.Wrapf(err, "stage %s of %s", stage.Name, study.StudyID)
		}
	}

	if err := p.transition(ctx, study, models.IntegrationPassed, study.StageRunID); err != nil {
		return err
	}
	metrics.StudyRunsTotal.WithLabelValues(string(study.Kind), string(models.IntegrationPassed)).Inc()
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, study *models.Study, stage Stage) error {
	rec := &models.StageRun{
		ID:        uuid.New(),
		StudyID:   study.ID,
		Name:      stage.Name,
		Status:    StageRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := p.db.WithContext(ctx).Create(rec).Error; err != nil {
		return err
	}
	if err := p.transition(ctx, study, models.IntegrationRunning, &rec.ID); err != nil {
		return err
	}

	log.Info("pipeline stage started",
		"study", study.StudyID, "stage", stage.Name, "run", rec.ID)

	err := stage.Run(ctx, p, study)

	done := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       StageSucceeded,
		"completed_at": &done,
	}
	if err != nil {
		updates["status"] = StageFailed
		updates["error"] = err.Error()
		log.Error("pipeline stage failed",
			"study", study.StudyID, "stage", stage.Name, "error", err)
	}

	if dbErr := p.db.WithContext(ctx).
		Model(&models.StageRun{}).
		Where("id = ?", rec.ID).
		Updates(updates).Error; dbErr != nil && err == nil {
		err = dbErr
	}

	status := updates["status"].(string)
	metrics.StageRunsTotal.WithLabelValues(stage.Name, status).Inc()
	metrics.StageDurationSeconds.WithLabelValues(stage.Name, status).
		Observe(done.Sub(rec.StartedAt).Seconds())
	return err
}

// transition moves the study to a non-failure status and
// records the stage run driving it. Under a node lease the
// update doubles as a renewal: it applies only while this
// node still owns the claim, and pushes the expiry forward.
func (p *Pipeline) transition(ctx context.Context, study *models.Study, status models.IntegrationStatus, runID *uuid.UUID) error {
	updates := map[string]interface{}{
		"status":        status,
		"status_detail": "",
	}
	if runID != nil {
		updates["stage_run_id"] = *runID
	}
	if err := p.updateOwned(ctx, study, updates); err != nil {
		return err
	}

	study.Status = status
	study.StatusDetail = ""
	study.StageRunID = runID
	return nil
}

// fail records a terminal failure. The stage-run reference is
// deliberately left untouched.
func (p *Pipeline) fail(ctx context.Context, study *models.Study, cause error) {
	err := p.updateOwned(ctx, study, map[string]interface{}{
		"status":        models.IntegrationFailed,
		"status_detail": cause.Error(),
	})
	if err != nil {
		log.Error("failed to record failure status",
			"study", study.StudyID, "error", err)
		return
	}

	study.Status = models.IntegrationFailed
	study.StatusDetail = cause.Error()
}

// updateOwned applies study updates, guarded by the node
// lease when one is configured.
func (p *Pipeline) updateOwned(ctx context.Context, study *models.Study, updates map[string]interface{}) error {
	q := p.db.WithContext(ctx).
		Model(&models.Study{}).
		Where("id = ?", study.ID)

	if p.cfg.NodeID != "" {
		q = q.Where("claimed_by = ?", p.cfg.NodeID)
		updates["claim_expires_at"] = time.Now().UTC().Add(p.cfg.LeaseTTL)
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if p.cfg.NodeID != "" && result.RowsAffected == 0 {
		return errors.Wrapf(ErrLeaseLost,
			"%s no longer claimed by %s", study.StudyID, p.cfg.NodeID)
	}
	return nil
}

func (p *Pipeline) loadStudy(ctx context.Context, id uuid.UUID) (*models.Study, error) {
	study := &models.Study{}
	err := p.db.WithContext(ctx).
		Preload("SubmittedData.ReferenceGenome").
		Preload("PreprocessedData").
		First(study, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrapf(err, "load study %s", id)
	}
	return study, nil
}
