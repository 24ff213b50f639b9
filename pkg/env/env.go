package env

import (
	"time"

	"github.com/epivar-cloud/epivar/pkg/log"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

var variables = new(Environment)

// Process the environment variables set for epivar.
func Process() error {
	if err := envconfig.Process("epivar", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevel(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by epivar.
type Environment struct {
	LogLevel     string `default:"info"`
	Port         int    `default:"8080"`
	DatabaseType string `default:"sqlite"`
	DatabaseDSN  string `default:"epivar.db"`

	// DataRoot is the directory under which study, dataset
	// and reference files are stored.
	DataRoot string `default:"/var/lib/epivar"`

	// WorkerPoolSize bounds the number of concurrently
	// executing pipeline stages.
	WorkerPoolSize int `default:"4"`
	// WorkerPollInterval is how often idle workers poll the
	// stage queue.
	WorkerPollInterval time.Duration `default:"500ms"`

	// ChecksumRetries bounds retry attempts for transient
	// checksum failures.
	ChecksumRetries    uint          `default:"3"`
	ChecksumRetryDelay time.Duration `default:"10s"`

	// ReferenceOverlapThreshold is the minimum fraction of
	// submitted rows that must intersect the reference
	// chromosome extents.
	ReferenceOverlapThreshold float64 `default:"0.9999"`
}
