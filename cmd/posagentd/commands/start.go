package commands

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/posagent/posagentd/internal/delivery"
	"github.com/posagent/posagentd/internal/health"
	"github.com/posagent/posagentd/internal/identity"
	"github.com/posagent/posagentd/internal/logger"
	"github.com/posagent/posagentd/internal/serialio"
	"github.com/posagent/posagentd/internal/txn"
	"github.com/posagent/posagentd/internal/video"
	"github.com/posagent/posagentd/pkg/config"
	"github.com/posagent/posagentd/pkg/metrics"
	"github.com/posagent/posagentd/pkg/queue"
)

// shutdownGrace bounds how long the delivery loop gets to drain the
// outbound queue once a shutdown signal arrives.
const shutdownGrace = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the POS edge agent",
	Long: `Start posagentd: read the configured serial port, reconstruct
receipt transactions, and deliver them to the configured upstream intake.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/posagent/config.yaml.

Examples:
  # Start with default config location
  posagentd start

  # Start with custom config
  posagentd start --config /etc/posagent/config.yaml

  # Override a value via environment variable
  POSAGENT_LOGGING_LEVEL=DEBUG posagentd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// ingestCtx governs the serial reader and transaction pipeline: it's
	// canceled the instant a shutdown signal arrives, so no new lines are
	// ingested while the queue drains. shutdownCtx bounds that drain.
	ingestCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.InitRegistry(cfg.Health.MetricsEnabled)
	metricsAgent := metrics.NewAgent()

	deviceID := cfg.Device.IDOverride
	if deviceID == "" {
		mac, err := identity.ResolveMAC()
		if err != nil {
			return fmt.Errorf("failed to resolve device identity: %w", err)
		}
		deviceID = identity.DeviceID(mac, cfg.Serial.Port)
	}
	logger.Info("device identity resolved", logger.DeviceID(deviceID))

	store := queue.Open(cfg.Queue.DBPath)
	q := queue.New(store, queue.Limits{
		MaxAge:        cfg.Queue.MaxAge,
		ByteCap:       cfg.Queue.ByteCap.Int64(),
		TrimBatchSize: queue.DefaultLimits.TrimBatchSize,
	})

	evictionCtx, stopEviction := context.WithCancel(context.Background())
	go q.RunEvictionLoop(evictionCtx, cfg.Queue.EvictionInterval)

	videoCoordinator := video.New(video.Config{
		BaseURL:    cfg.Nvr.BaseURL,
		Camera:     cfg.Nvr.Camera,
		Label:      cfg.Nvr.Label,
		Duration:   cfg.Nvr.Duration,
		RemoteRole: cfg.Nvr.RemoteRole,
	})
	if videoCoordinator.Enabled() {
		logger.Info("NVR video coordinator enabled", logger.Camera(cfg.Nvr.Camera), logger.Label(cfg.Nvr.Label))
	} else {
		logger.Info("NVR video coordinator disabled")
	}

	device := txn.DeviceInfo{
		DeviceID:      deviceID,
		DeviceName:    cfg.Device.Name,
		PosType:       cfg.Device.PosType,
		ParserVersion: cfg.Device.ParserVersion,
		TerminalID:    cfg.Device.TerminalID,
	}

	var machine *txn.Machine
	machine = txn.NewMachine(device, cfg.Device.BatchLines, txn.Callbacks{
		OnStart: func(t *txn.Transaction) {
			go videoCoordinator.Start(ingestCtx, t.ID, func(eventID, url string) {
				machine.AttachNvrEvent(t.ID, eventID, url)
			})
		},
		OnLine: func(t *txn.Transaction, rec txn.LineRecord) {
			metricsAgent.RecordLine(string(rec.Type), rec.ParsedSuccessfully)
		},
		OnEnd: func(payloads [][]txn.LineRecord, summary txn.Summary) {
			enqueuePayloads(q, cfg, device, payloads, summary)
			metricsAgent.SetQueueDepth(q.Depth())

			if videoCoordinator.Enabled() && summary.NvrEventID != nil {
				handle := &txn.NvrEventHandle{EventID: *summary.NvrEventID}
				go videoCoordinator.Finish(context.Background(), handle, summary)
			}
		},
	})

	reader := serialio.New(serialio.Config{Port: cfg.Serial.Port, Baud: cfg.Serial.Baud}, machine.Feed)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		reader.Run(ingestCtx)
	}()

	// deliveryCtx is independent of ingestCtx: on shutdown the serial
	// reader stops immediately but delivery keeps draining for up to
	// shutdownGrace before it's torn down too.
	deliveryCtx, stopDelivery := context.WithCancel(context.Background())
	deliveryLoop := delivery.NewLoop(q, metricsAgent)
	deliveryDone := make(chan struct{})
	go func() {
		defer close(deliveryDone)
		deliveryLoop.Run(deliveryCtx)
	}()

	healthSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Health.Host, cfg.Health.Port),
		Handler: health.NewRouter(q, Version, metrics.GetRegistry()),
	}
	healthDone := make(chan error, 1)
	go func() {
		healthDone <- healthSrv.ListenAndServe()
	}()

	logger.Info("posagentd running", logger.Port(cfg.Serial.Port), logger.Baud(cfg.Serial.Baud))

	select {
	case <-ingestCtx.Done():
		logger.Info("shutdown signal received, draining queue")
	case err := <-healthDone:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", logger.Err(err))
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()

	_ = healthSrv.Shutdown(shutdownCtx)
	stopEviction()
	<-readerDone

	machine.Flush()

	select {
	case <-deliveryDone:
	case <-shutdownCtx.Done():
		logger.Warn("delivery loop did not drain within the shutdown grace period")
	}
	stopDelivery()
	<-deliveryDone

	if err := q.Close(); err != nil {
		logger.Error("queue: close failed", logger.Err(err))
	}

	logger.Info("posagentd stopped")
	return nil
}

// lineTopic reports the outbound job topic for a line payload: plural when
// the device batches every line of a transaction into one post, singular
// when each line is posted on its own.
func lineTopic(batched bool) string {
	if batched {
		return "transaction_lines"
	}
	return "transaction_line"
}

// enqueuePayloads pushes every line payload and the transaction summary
// onto the durable queue. A single failed push is logged and skipped
// rather than aborting the rest of the transaction's payloads.
func enqueuePayloads(q *queue.Queue, cfg *config.Config, device txn.DeviceInfo, payloads [][]txn.LineRecord, summary txn.Summary) {
	headers := map[string]string{
		"X-Device-ID":   device.DeviceID,
		"X-Device-Name": device.DeviceName,
		"X-POS-Type":    device.PosType,
	}
	topic := lineTopic(cfg.Device.BatchLines)

	for _, batch := range payloads {
		body, err := delivery.BuildJSONBody(batch)
		if err != nil {
			logger.Error("failed to encode line payload", logger.Err(err))
			continue
		}
		if _, err := q.Push(topic, cfg.Upstream.LineURL, body, headers); err != nil {
			logger.Error("failed to enqueue line payload", logger.Err(err))
		}
	}

	summaryBody, err := delivery.BuildJSONBody(summary)
	if err != nil {
		logger.Error("failed to encode summary payload", logger.Err(err))
		return
	}
	if _, err := q.Push("transactions", cfg.Upstream.SummaryURL, summaryBody, headers); err != nil {
		logger.Error("failed to enqueue summary payload", logger.Err(err))
	}
}
