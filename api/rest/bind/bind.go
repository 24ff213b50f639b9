package bind

import (
	"github.com/labstack/echo/v4"

	"github.com/epivar-cloud/epivar/api/rest/controller/analysis"
	"github.com/epivar-cloud/epivar/api/rest/controller/dataset"
	"github.com/epivar-cloud/epivar/api/rest/controller/genome"
	"github.com/epivar-cloud/epivar/api/rest/controller/study"
)

func All(g *echo.Group) {
	// studies
	{
		g.GET("/studies", study.List)
		g.GET("/studies/:id", study.Get)
		g.GET("/studies/:id/stages", study.Stages)
		g.POST("/studies", study.Post)
		g.DELETE("/studies/:id", study.Delete)
	}

	// datasets
	{
		g.GET("/datasets", dataset.List)
		g.GET("/datasets/:id", dataset.Get)
	}

	// reference genomes
	{
		g.GET("/genomes", genome.List)
		g.GET("/genomes/:id", genome.Get)
		g.GET("/genomes/:id/chains", genome.Chains)
	}

	// analyses
	{
		g.GET("/analyses", analysis.List)
		g.GET("/analyses/:id", analysis.Get)
		g.POST("/analyses", analysis.Post)
	}
}
