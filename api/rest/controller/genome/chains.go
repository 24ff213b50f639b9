package genome

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/epivar-cloud/epivar/api/rest/service/genome"
)

// Chains lists the liftover chains published from a genome.
func Chains(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	chains, err := genome.Service(c.Request().Context()).Chains(id)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, chains)
}
