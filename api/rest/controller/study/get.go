package study

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/api/rest/service/study"
	"github.com/epivar-cloud/epivar/internal/models"
)

// Get resolves a study by row id or by public identifier,
// e.g. PAS000042.
func Get(c echo.Context) error {
	var (
		svc   = study.Service(c.Request().Context())
		s     *models.Study
		err   error
		param = c.Param("id")
	)

	if id, parseErr := uuid.Parse(param); parseErr == nil {
		s, err = svc.Get(id)
	} else {
		s, err = svc.GetByStudyID(param)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	default:
		return c.JSON(http.StatusOK, s)
	}
}
