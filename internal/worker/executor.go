package worker

import (
	"context"

	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/internal/pipeline"
	"github.com/epivar-cloud/epivar/pkg/log"
)

// PipelineExecutor runs the integration chain for claimed
// studies. Failures land on the study row; the queue loop
// only logs them.
func PipelineExecutor(p *pipeline.Pipeline) StudyExecutor {
	return func(ctx context.Context, study *models.Study) {
		log.Info("study integration started",
			"study", study.StudyID, "kind", study.Kind)

		if err := p.Run(ctx, study.ID); err != nil {
			log.Error("study integration failed",
				"study", study.StudyID, "error", err)
			return
		}

		log.Info("study integration finished", "study", study.StudyID)
	}
}
