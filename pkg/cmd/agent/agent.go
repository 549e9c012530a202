package agent

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/bus"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
	ingestCmd "github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/ingest"
	responderCmd "github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/responder"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/util"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/config"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/ingest"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/responder"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/tools"
)

var statusInterval time.Duration

func NewAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "runs ingestion and the chat responder on a shared state cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startAgent()
		},
	}
	util.AddNatsFlags(cmd)
	util.AddLogFlags(cmd)
	ingestCmd.AddFlags(cmd)
	responderCmd.AddFlags(cmd)
	cmd.Flags().DurationVar(&statusInterval,
		"status-interval",
		time.Minute,
		"interval for logging the operational status (0 disables)")
	return cmd
}

// subscribeAll establishes the ingestion subscriptions before the responder
// starts taking questions.
func subscribeAll(mgr *ingest.Manager, r *responder.Responder) bus.SubscribeFunc {
	return func(ctx context.Context, conn bus.Conn) error {
		if err := mgr.Subscribe(ctx, conn); err != nil {
			return err
		}
		return r.Subscribe(ctx, conn)
	}
}

func startAgent() error {
	logger := util.SetupLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if telemetry := util.SetupTelemetry(ctx); telemetry != nil {
		defer telemetry.Shutdown()
	}

	started := time.Now()
	stateCache := cache.New()
	mgr, cleanup, err := ingestCmd.Setup(ctx, stateCache, logger)
	if err != nil {
		log.Error("agent could not be started", log.ErrorField(err))
		return err
	}
	defer cleanup()

	answerer, err := responderCmd.NewAnswerer(stateCache, logger)
	if err != nil {
		log.Error("agent could not be started", log.ErrorField(err))
		return err
	}
	r := responder.New(responderCmd.ConfigFromFlags(), answerer,
		responder.WithLogger(logger.Named("responder")))
	r.SetupMetrics()

	if statusInterval > 0 {
		go logStatus(ctx, statusInterval, tools.StatusSource{
			Cache:           stateCache,
			Catchup:         mgr.CatchupMetrics,
			ChatPersistence: mgr.ChatPersistenceMetrics,
			Pipeline:        r.Stats,
			Started:         started,
		})
	}

	log.Info("Starting agent", log.String("nats", config.NatsURL))
	sup := util.NewSupervisor(subscribeAll(mgr, r), logger)
	err = r.Run(ctx, sup)
	if !mgr.Wait(config.ShutdownGrace) {
		log.Warn("chat persistence did not finish in time")
	}
	if err != nil {
		log.Error("agent stopped", log.ErrorField(err))
		return err
	}
	log.Info("Agent terminated")
	return nil
}

func logStatus(ctx context.Context, interval time.Duration, src tools.StatusSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := tools.OperationalStatus(src)
			log.Info("status",
				log.Duration("uptime", s.Uptime),
				log.Any("cache", s.CacheSizes),
				log.Any("catchup", s.Catchup),
				log.Any("chatPersistence", s.ChatPersistence),
				log.Any("pipeline", s.Pipeline))
		}
	}
}
