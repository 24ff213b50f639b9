package study

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/epivar-cloud/epivar/api/rest/service/study"
)

func Post(c echo.Context) error {
	var req study.CreateRequest

	if err := c.Bind(&req); err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	s, err := study.Service(c.Request().Context()).Create(&req)

	switch {
	case errors.Is(err, study.ErrUnknownKind),
		errors.Is(err, study.ErrUnknownGenome):
		return echo.ErrBadRequest.SetInternal(err)
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	default:
		return c.JSON(http.StatusCreated, s)
	}
}
