package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"

	"github.com/epivar-cloud/epivar/api/rest/bind"
	"github.com/epivar-cloud/epivar/pkg/env"
)

var e *echo.Echo

// Start launches epivar's API and serves until the context
// ends or the listener fails.
func Start(ctx context.Context) error {
	e = echo.New()
	e.HideBanner = true
	e.HidePort = true

	// health
	e.GET("/health", Health)

	// metrics
	prometheus.NewPrometheus("epivar", nil).Use(e)

	// REST
	bind.All(e.Group("/v1"))

	go func() {
		<-ctx.Done()
		_ = Shutdown()
	}()

	err := e.Start(fmt.Sprintf(":%v", env.Variables().Port))
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the API.
func Shutdown() error {
	if e == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return e.Shutdown(ctx)
}
