package tasks

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/email"
)

// TaskType defines the type of a background task.
const (
	TypeNotificationDelivery = "notification:deliver"
	TypeNotificationSweep    = "notification:sweep"
)

// Queues.
const (
	QueueNotifications = "notifications"
	QueueMaintenance   = "low"
)

const sweepSchedule = "@every 10m"

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// --- Task Server (Processing tasks) ---

// Dispatcher is the transport chain notifications go out through.
type Dispatcher interface {
	SendVia(ctx context.Context, to []string, subject string, rawMessage []byte) (string, error)
	Configured() bool
}

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg       *config.Config
	sender    Dispatcher
	logSender email.Sender
	records   NotificationRecords
	log       *zap.Logger
}

func NewTaskProcessor(cfg *config.Config, sender Dispatcher, records NotificationRecords, log *zap.Logger) *TaskProcessor {
	return &TaskProcessor{
		cfg:       cfg,
		sender:    sender,
		logSender: email.NewLoggingSender(log),
		records:   records,
		log:       log,
	}
}

// SetupServer configures the Asynq server and its handlers. The caller runs
// it with srv.Run(mux).
func SetupServer(rdb *redis.Client, processor *TaskProcessor, log *zap.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				QueueNotifications: 6,
				"default":          3,
				QueueMaintenance:   1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("Task failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err),
				)
			}),
			Logger:          log.Sugar(),
			ShutdownTimeout: 10 * time.Second,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotificationDelivery, processor.HandleNotificationDeliveryTask)
	mux.HandleFunc(TypeNotificationSweep, processor.HandleNotificationSweepTask)
	log.Info("Registered background task handlers",
		zap.Strings("types", []string{TypeNotificationDelivery, TypeNotificationSweep}),
	)
	return srv, mux
}

// SetupScheduler registers the periodic maintenance tasks.
func SetupScheduler(rdb *redis.Client, log *zap.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt(rdb), &asynq.SchedulerOpts{
		Logger: log.Sugar(),
		EnqueueErrorHandler: func(task *asynq.Task, opts []asynq.Option, err error) {
			log.Error("Failed to enqueue periodic task", zap.String("type", task.Type()), zap.Error(err))
		},
	})
	if _, err := scheduler.Register(sweepSchedule, asynq.NewTask(TypeNotificationSweep, nil),
		asynq.Queue(QueueMaintenance), asynq.MaxRetry(0), asynq.Unique(5*time.Minute)); err != nil {
		return nil, err
	}
	return scheduler, nil
}
