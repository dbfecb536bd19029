package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/inbox"
	"jan-server/services/chat-api/internal/domain/user"
	"jan-server/services/chat-api/internal/infrastructure/auth"
	"jan-server/services/chat-api/internal/infrastructure/crontab"
	"jan-server/services/chat-api/internal/infrastructure/database"
	"jan-server/services/chat-api/internal/infrastructure/database/repository/conversationrepo"
	"jan-server/services/chat-api/internal/infrastructure/database/repository/inboxrepo"
	"jan-server/services/chat-api/internal/infrastructure/database/repository/memoryrepo"
	"jan-server/services/chat-api/internal/infrastructure/database/repository/userrepo"
	"jan-server/services/chat-api/internal/infrastructure/database/transaction"
	"jan-server/services/chat-api/internal/infrastructure/lock"
	"jan-server/services/chat-api/internal/infrastructure/queue"
	"jan-server/services/chat-api/internal/infrastructure/realtime"
	"jan-server/services/chat-api/internal/infrastructure/redisclient"
	"jan-server/services/chat-api/internal/infrastructure/telemetry"
	"jan-server/services/chat-api/internal/interfaces/httpserver"
)

// Storage bundles the repositories of the selected driver.
type Storage struct {
	Conversations conversation.ConversationRepository
	Messages      conversation.MessageRepository
	Users         user.Repository
	Inbox         inbox.Repository
	Transactor    conversation.Transactor
	Ready         httpserver.ReadinessProbe
	Close         func() error
}

// ProvideStorage opens Postgres (running migrations when enabled) or builds the in-memory store.
func ProvideStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Storage, error) {
	if cfg.DBDriver == config.DBDriverMemory {
		store := memoryrepo.NewStore()
		users := memoryrepo.NewUserRepository(store)
		seeded, err := parseSeedUsers(cfg.MemorySeedUsers)
		if err != nil {
			return nil, err
		}
		for _, u := range seeded {
			users.Upsert(u)
		}
		log.Warn().Int("seed_users", len(seeded)).Msg("using in-memory storage; data is lost on restart")
		return &Storage{
			Conversations: memoryrepo.NewConversationRepository(store),
			Messages:      memoryrepo.NewMessageRepository(store),
			Users:         users,
			Inbox:         memoryrepo.NewInboxRepository(store),
			Transactor:    store,
			Ready:         func(context.Context) error { return nil },
			Close:         func() error { return nil },
		}, nil
	}

	logLevel := gormlogger.Warn
	if strings.EqualFold(cfg.LogLevel, "debug") {
		logLevel = gormlogger.Info
	}
	db, err := database.Connect(database.Config{
		DatabaseURL: cfg.DatabaseURL,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
		LogLevel:    logLevel,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := database.AutoMigrate(ctx, db, log); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	tx := transaction.NewDatabase(db)
	return &Storage{
		Conversations: conversationrepo.NewConversationGormRepository(tx),
		Messages:      conversationrepo.NewMessageGormRepository(tx),
		Users:         userrepo.NewUserGormRepository(tx),
		Inbox:         inboxrepo.NewInboxGormRepository(tx),
		Transactor:    tx,
		Ready:         func(ctx context.Context) error { return database.Ping(ctx, db) },
		Close:         func() error { return database.Close(db) },
	}, nil
}

// ProvideLocker returns the per-conversation lock for the configured backend.
func ProvideLocker(ctx context.Context, cfg *config.Config, log zerolog.Logger) (conversation.Locker, func(), error) {
	if cfg.LockBackend != config.LockBackendRedis {
		return lock.NewKeyedMutex(), func() {}, nil
	}
	client, err := redisclient.New(ctx, cfg.RedisURL, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis for locking: %w", err)
	}
	return lock.NewRedisLocker(client, cfg.LockTTL, log), func() { _ = client.Close() }, nil
}

// ProvideDirectory builds the cached user directory.
func ProvideDirectory(storage *Storage, cfg *config.Config, log zerolog.Logger) (*user.Directory, error) {
	return user.NewDirectory(storage.Users, cfg.UserCacheSize, log)
}

// ProvideSanitizer builds the log sanitizer for message previews.
func ProvideSanitizer(cfg *config.Config) *telemetry.Sanitizer {
	return telemetry.NewSanitizer(telemetry.ParsePIILevel(cfg.PreviewPIILevel), cfg.ServiceName+"/"+cfg.Environment)
}

// ProvideInboxService builds the inbox service.
func ProvideInboxService(storage *Storage, log zerolog.Logger) *inbox.Service {
	return inbox.NewService(storage.Inbox, log)
}

// Notifications is the background delivery pipeline for inbox notifications.
type Notifications struct {
	Queue  *queue.BackgroundQueue
	Worker *queue.AsynqWorker
	Close  func()
}

// ProvideNotifications wires the bounded in-process queue. With the asynq
// backend the queue forwards into Redis and a worker stores the notifications.
func ProvideNotifications(cfg *config.Config, inboxService *inbox.Service, log zerolog.Logger) (*Notifications, error) {
	instr, err := queue.NewInstrumenter(cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("queue instrumentation: %w", err)
	}
	queueCfg := queue.Config{
		Size:        cfg.NotifyQueueSize,
		WorkerCount: cfg.NotifyWorkers,
		TaskTimeout: cfg.OperationTimeout,
	}
	store := queue.SinkFunc(inboxService.Deliver)

	if cfg.NotifyBackend != config.NotifyBackendAsynq {
		return &Notifications{
			Queue: queue.NewBackgroundQueue(store, instr, queueCfg, log),
			Close: func() {},
		}, nil
	}

	queueCfg.Stage = queue.StageForward
	sink, err := queue.NewAsynqSink(cfg.RedisURL, cfg.NotifyQueueName)
	if err != nil {
		return nil, err
	}
	worker, err := queue.NewAsynqWorker(queue.WorkerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.NotifyQueueName,
		Concurrency: cfg.NotifyWorkers,
	}, store, instr, log)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	return &Notifications{
		Queue:  queue.NewBackgroundQueue(sink, instr, queueCfg, log),
		Worker: worker,
		Close:  func() { _ = sink.Close() },
	}, nil
}

// ProvideHub builds the connection registry. Its membership checker is set
// once the conversation service exists.
func ProvideHub(log zerolog.Logger) *realtime.Hub {
	return realtime.NewHub(nil, log)
}

// ProvideConversationService builds the conversation service and attaches it to the hub.
func ProvideConversationService(
	cfg *config.Config,
	storage *Storage,
	locker conversation.Locker,
	hub *realtime.Hub,
	notifications *Notifications,
	directory *user.Directory,
	sanitizer *telemetry.Sanitizer,
	log zerolog.Logger,
) conversation.Service {
	svc := conversation.NewService(conversation.Dependencies{
		Conversations: storage.Conversations,
		Messages:      storage.Messages,
		Transactor:    storage.Transactor,
		Locker:        locker,
		Publisher:     hub,
		Notifier:      notifications.Queue,
		Directory:     directory,
		Sanitizer:     sanitizer,
	}, conversation.Options{
		OperationTimeout: cfg.OperationTimeout,
		Validation: conversation.ValidationRules{
			MaxBodyLength:      cfg.MessageMaxBodyLength,
			MaxAttachments:     cfg.AttachmentMaxCount,
			MaxAttachmentBytes: cfg.AttachmentMaxBytes,
			AllowedMediaTypes:  cfg.AttachmentAllowedTypes,
		},
	}, log)
	hub.SetMembershipChecker(svc)
	return svc
}

// ProvideCrontab schedules unread reconciliation, or returns nil when disabled.
func ProvideCrontab(cfg *config.Config, service conversation.Service, log zerolog.Logger) *crontab.Crontab {
	if !cfg.ReconcileEnabled {
		return nil
	}
	return crontab.NewCrontab(service, crontab.Config{Schedule: cfg.ReconcileCron, Window: cfg.ReconcileWindow}, log)
}

// ProvideAuthValidator provides an auth validator.
func ProvideAuthValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*auth.Validator, error) {
	return auth.NewValidator(ctx, cfg, log)
}

// ProvideReadinessProbe exposes the storage ping to /readyz.
func ProvideReadinessProbe(storage *Storage) httpserver.ReadinessProbe {
	return storage.Ready
}

// parseSeedUsers reads "id:Display Name" entries. A bare id is its own display name.
func parseSeedUsers(entries []string) ([]*user.User, error) {
	users := make([]*user.User, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, name, found := strings.Cut(entry, ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("invalid MEMORY_SEED_USERS entry %q", entry)
		}
		if !found || name == "" {
			name = id
		}
		users = append(users, &user.User{ID: id, DisplayName: name})
	}
	return users, nil
}
