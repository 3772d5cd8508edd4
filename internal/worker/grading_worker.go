package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/config"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/repository"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service"
)

// GradingWorker слушает очередь заданий и прогоняет проверки в фоне.
// Артефакты входа берутся из хранилища по ключам из события.
type GradingWorker struct {
	broker    repository.RabbitMQRepository
	artifacts repository.ArtifactStore
	registry  repository.RunRegistry
	grading   service.GradingService
	pool      *Pool
	cfg       config.RabbitMQConfig
	logger    zerolog.Logger
}

func NewGradingWorker(
	broker repository.RabbitMQRepository,
	artifacts repository.ArtifactStore,
	registry repository.RunRegistry,
	grading service.GradingService,
	pool *Pool,
	cfg config.RabbitMQConfig,
	logger zerolog.Logger,
) *GradingWorker {
	return &GradingWorker{
		broker:    broker,
		artifacts: artifacts,
		registry:  registry,
		grading:   grading,
		pool:      pool,
		cfg:       cfg,
		logger:    logger,
	}
}

func (w *GradingWorker) Start(ctx context.Context) error {
	if err := w.broker.SetupQueue(w.cfg.Exchange, w.cfg.QueueName, w.cfg.RoutingKey); err != nil {
		return err
	}
	if err := w.broker.SetupQueue(w.cfg.Exchange, w.cfg.EventsQueue, w.cfg.EventsKey); err != nil {
		return err
	}

	deliveries, err := w.broker.Consume(ctx, w.cfg.QueueName, w.cfg.ConsumerTag)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				w.logger.Info().Msg("Grading worker stopped")
				return
			case msg, ok := <-deliveries:
				if !ok {
					w.logger.Warn().Msg("Delivery channel closed")
					return
				}

				var event models.GradingRequestedEvent
				if err := json.Unmarshal(msg.Body, &event); err != nil {
					w.logger.Error().Err(err).Msg("Dropping malformed grading request")
					msg.Nack(false, false)
					continue
				}

				submitted := w.pool.Submit(func() {
					w.process(ctx, event)
				})
				if !submitted {
					msg.Nack(false, true)
					continue
				}
				msg.Ack(false)
			}
		}
	}()

	w.logger.Info().Str("queue", w.cfg.QueueName).Msg("Grading worker started")
	return nil
}

func (w *GradingWorker) process(ctx context.Context, event models.GradingRequestedEvent) {
	log := w.logger.With().Str("grading_id", event.GradingID).Logger()
	w.registry.MarkProcessing(event.GradingID)

	keyPDF, err := w.artifacts.Load(ctx, event.AnswerKey)
	if err != nil {
		w.fail(ctx, event.GradingID, "answer key artifact missing: "+err.Error())
		return
	}
	studentPDF, err := w.artifacts.Load(ctx, event.StudentKey)
	if err != nil {
		w.fail(ctx, event.GradingID, "student artifact missing: "+err.Error())
		return
	}

	result, err := w.grading.Grade(ctx, service.GradingRequest{
		GradingID:   event.GradingID,
		StudentName: event.StudentName,
		KeyPDF:      keyPDF,
		StudentPDF:  studentPDF,
		Progress: func(stage string, fraction float64) {
			w.publishProgress(ctx, event.GradingID, stage, fraction)
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Grading run failed")
		w.fail(ctx, event.GradingID, err.Error())
		return
	}

	w.registry.MarkCompleted(event.GradingID, result)
	w.publish(ctx, models.GradingCompletedEvent{
		GradingID:          result.GradingID,
		StudentName:        result.StudentName,
		Status:             models.GradingStatusCompleted.String(),
		TotalScore:         result.Report.TotalScore,
		MaxTotal:           result.Report.MaxTotal,
		QualityCheckPassed: result.QualityCheckPassed,
		ProcessingTime:     result.ProcessingTimeMs,
		CompletedAt:        time.Now(),
	})
}

func (w *GradingWorker) fail(ctx context.Context, gradingID, reason string) {
	w.registry.MarkFailed(gradingID, reason)
	w.publish(ctx, models.GradingFailedEvent{
		GradingID: gradingID,
		Error:     reason,
		FailedAt:  time.Now(),
	})
}

func (w *GradingWorker) publishProgress(ctx context.Context, gradingID, stage string, fraction float64) {
	w.publish(ctx, models.GradingProgressEvent{
		GradingID: gradingID,
		Stage:     stage,
		Fraction:  fraction,
		Timestamp: time.Now(),
	})
}

func (w *GradingWorker) publish(ctx context.Context, payload interface{}) {
	if err := w.broker.PublishJSON(ctx, w.cfg.Exchange, w.cfg.EventsKey, payload); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to publish grading event")
	}
}
