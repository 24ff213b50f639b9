package analysis

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/epivar-cloud/epivar/api/rest/service/analysis"
	"github.com/epivar-cloud/epivar/internal/stats"
	"github.com/epivar-cloud/epivar/pkg/log"
)

// Post creates an analysis and executes its engine in the
// background. Poll the analysis until completed_at is set.
func Post(c echo.Context) error {
	var req analysis.CreateRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	a, err := analysis.Service(c.Request().Context()).Create(&req)

	switch {
	case errors.Is(err, analysis.ErrUnknownKind),
		errors.Is(err, analysis.ErrUnknownGenome),
		errors.Is(err, analysis.ErrBadPermutations),
		errors.Is(err, stats.ErrUnknownMethod):
		return echo.ErrBadRequest.SetInternal(err)
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	}

	go func() {
		if err := analysis.Service(context.Background()).Execute(a.ID); err != nil {
			log.Error("analysis execution failed",
				"id", a.ID,
				"kind", a.Kind,
				"error", err)
		}
	}()

	return c.JSON(http.StatusCreated, a)
}
