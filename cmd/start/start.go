package start

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/epivar-cloud/epivar/api"
	"github.com/epivar-cloud/epivar/internal/metrics"
	"github.com/epivar-cloud/epivar/internal/pipeline"
	"github.com/epivar-cloud/epivar/internal/worker"
	"github.com/epivar-cloud/epivar/pkg/db"
	"github.com/epivar-cloud/epivar/pkg/env"
	"github.com/epivar-cloud/epivar/pkg/log"
)

const (
	usage   = "start"
	short   = "Start an epivar instance"
	long    = "This command starts an epivar API and integration worker instance"
	example = "epivar start"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"launch", "boot", "up", "run", "begin"},
		Example:    example,
		RunE:       start,
	}
)

var cancel context.CancelFunc

func start(cmd *cobra.Command, args []string) error {
	signalChan := make(chan os.Signal, 1)

	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 signal")
				if profile := pprof.Lookup("goroutine"); profile != nil {
					if err := profile.WriteTo(os.Stdout, 1); err != nil {
						log.Error("write goroutine profile", "error", err)
					}
				}
			case syscall.SIGINT:
				log.Info("gracefully shutting down due to SIGINT signal")
				shutdown()
				os.Exit(0)
			}
		}
	}()

	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT)

	var errs = make(chan error)
	ctx, cancelFunc := context.WithCancel(context.Background())
	cancel = cancelFunc

	log.Info("migrating database")
	if err := db.Migrate(); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	metrics.Register()

	vars := env.Variables()

	// the claimer and the pipeline must agree on the lease
	// holder, or every stage transition would see a foreign
	// claim and abort
	node := nodeID()

	p := pipeline.New(db.Connection(), pipeline.Config{
		DataRoot:           vars.DataRoot,
		OverlapThreshold:   vars.ReferenceOverlapThreshold,
		ChecksumRetries:    vars.ChecksumRetries,
		ChecksumRetryDelay: vars.ChecksumRetryDelay,
		NodeID:             node,
	})

	w := worker.NewWorker(
		worker.NewClaimer(node, db.Connection(), 0),
		worker.NewPool(vars.WorkerPoolSize),
		vars.WorkerPollInterval,
		worker.PipelineExecutor(p),
	)

	go func() {
		log.Info("spinning up api")
		errs <- api.Start(ctx)
	}()

	go func() {
		log.Info("launching integration worker")
		errs <- w.Run(ctx)
	}()

	defer shutdown()

	return <-errs
}

// nodeID identifies this worker in study leases.
func nodeID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "epivar"
	}
	return host + "-" + uuid.NewString()[:8]
}

func shutdown() {
	if cancel != nil {
		cancel()
	}
	if err := api.Shutdown(); err != nil {
		log.Error("api shutdown failure", "error", err)
	}
}
