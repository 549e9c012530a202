package ingest

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/util"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/config"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/ingest"
)

func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "consumes race data from NATS into the state cache and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startIngest()
		},
	}
	util.AddNatsFlags(cmd)
	util.AddLogFlags(cmd)
	AddFlags(cmd)
	return cmd
}

// Setup creates the ingestion manager on top of c. The returned cleanup
// closes the store.
func Setup(ctx context.Context, c *cache.StateCache, logger *log.Logger) (
	mgr *ingest.Manager, cleanup func(), err error,
) {
	store, err := util.OpenStore(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	opts := []ingest.ProcessorOption{ingest.WithProcessorLogger(logger.Named("processor"))}
	if store != nil {
		opts = append(opts, ingest.WithStore(store))
	}
	proc := ingest.NewProcessor(c, opts...)
	mgr = ingest.NewManager(ConfigFromFlags(), proc,
		ingest.WithManagerLogger(logger.Named("ingest")))
	mgr.SetupMetrics()
	cleanup = func() {
		if store == nil {
			return
		}
		if err := store.Close(); err != nil {
			log.Warn("closing store", log.ErrorField(err))
		}
	}
	return mgr, cleanup, nil
}

func startIngest() error {
	logger := util.SetupLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if telemetry := util.SetupTelemetry(ctx); telemetry != nil {
		defer telemetry.Shutdown()
	}

	mgr, cleanup, err := Setup(ctx, cache.New(), logger)
	if err != nil {
		log.Error("ingest could not be started", log.ErrorField(err))
		return err
	}
	defer cleanup()

	log.Info("Starting ingest", log.String("nats", config.NatsURL))
	sup := util.NewSupervisor(mgr.Subscribe, logger)
	err = sup.Run(ctx)
	if !mgr.Wait(config.ShutdownGrace) {
		log.Warn("chat persistence did not finish in time")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ingest stopped", log.ErrorField(err))
		return err
	}
	log.Info("Ingest terminated")
	return nil
}
