package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"messenger-core/config"
	"messenger-core/controller"
	"messenger-core/database"
	"messenger-core/event"
	"messenger-core/event/listener"
	"messenger-core/logger"
	"messenger-core/messenger"
	"messenger-core/presence"
	"messenger-core/push"
	"messenger-core/repository"
	"messenger-core/router"
	"messenger-core/socketio"
	"messenger-core/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "messenger-core:", err)
		os.Exit(1)
	}

	log, err := logger.New(settings.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "messenger-core: logger:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(settings, log); err != nil {
		log.Fatal("messenger-core stopped", zap.Error(err))
	}
}

func run(settings *config.Settings, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// Directory and message store
	var db *gorm.DB
	var messages repository.Messages
	var err error
	switch settings.MessageStore {
	case config.StoreMemory:
		if db, err = database.SQLiteConnect(database.MemoryDSN, log); err != nil {
			return err
		}
		messages = repository.NewMemoryMessages()
	case config.StoreMongo:
		if db, err = database.PostgresConnect(settings.Postgres, log); err != nil {
			return err
		}
		client, err := database.MongoConnect(ctx, settings.Mongo, log)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background()) //nolint:errcheck
		store := repository.NewMongoMessages(client.Database(settings.Mongo.DB).Collection(database.MessagesCollection))
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		messages = store
	default:
		if db, err = database.PostgresConnect(settings.Postgres, log); err != nil {
			return err
		}
		messages = repository.NewGormMessages(db)
	}
	users := repository.NewGormUsers(db)

	// Presence and the cross-process socket adapter
	var online presence.Store = presence.NewMemory()
	var adapterClient *redis.Client
	if settings.PresenceBackend == config.PresenceRedis {
		presenceClient, err := database.RedisConnect(ctx, settings.Redis, settings.Redis.PresenceDB(), log)
		if err != nil {
			return err
		}
		defer presenceClient.Close()
		online = presence.NewRedis(presenceClient, presence.DefaultKey)

		if adapterClient, err = database.RedisConnect(ctx, settings.Redis, settings.Redis.AdapterDB(), log); err != nil {
			return err
		}
		defer adapterClient.Close()
	}

	// Voice attachments
	var files storage.Store
	if settings.S3.Bucket != "" {
		s3Store, err := storage.NewS3(ctx, settings.S3)
		if err != nil {
			return err
		}
		files = s3Store
	} else {
		log.Warn("S3_BUCKET not set, voice files are kept in memory")
		files = storage.NewMemory(fmt.Sprintf("http://localhost:%s/files", settings.Port))
	}

	dispatcher := push.NewDispatcher(push.NewExpo(settings.Push, log), log)

	// Event broker
	var wg conc.WaitGroup
	publisher, err := connectBroker(ctx, settings, &wg, users, dispatcher, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	enforcer, err := database.Casbin(db)
	if err != nil {
		return err
	}

	registry := socketio.NewRegistry(online, users, settings.Socket.Heartbeat, log)
	gateway := socketio.New(registry, socketio.Options{
		Secret:   settings.JWTAccessKey,
		Settings: settings.Socket,
		Adapter:  adapterClient,
		Debug:    settings.LogDev,
	}, log)

	svc := messenger.New(messenger.Deps{
		Messages:    messages,
		Users:       users,
		Presence:    online,
		Notifier:    gateway,
		Pusher:      dispatcher,
		Attachments: files,
		Events:      publisher,
		Config: messenger.Config{
			E2EERequired: settings.E2EERequired,
			DefaultLimit: settings.HistoryDefaultLimit,
			MaxLimit:     settings.HistoryMaxLimit,
		},
		Log: log,
	})

	rest := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "messenger-core",
		BodyLimit:             int(settings.VoiceMaxBytes) + 1<<20,
	})
	rest.Use(cors.New())

	gateway.Mount(rest)
	router.Socket(gateway, svc)
	router.Rest(rest, router.Handlers{
		Messenger: controller.NewMessenger(svc, files, settings.VoiceMaxBytes, log),
		User:      controller.NewUser(svc),
		Admin:     controller.NewAdmin(svc),
	}, settings.JWTAccessKey, enforcer, log)

	listenErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("port", settings.Port))
		listenErr <- rest.Listen(":" + settings.Port)
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		return err
	}
	log.Info("shutting down")

	gateway.Close()
	if err := rest.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	return nil
}

// connectBroker opens the configured broker and starts serving push requests
// from it. Subscribers stop when ctx is cancelled.
func connectBroker(ctx context.Context, settings *config.Settings, wg *conc.WaitGroup, users repository.Users, dispatcher *push.Dispatcher, log *zap.Logger) (event.Publisher, error) {
	pushes := listener.NewPush(users, dispatcher, log)

	subscribe := func(sub event.Subscriber, source string) {
		wg.Go(func() {
			if err := sub.Subscribe(ctx, source, pushes.Handle); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("push subscription ended", zap.String("source", source), zap.Error(err))
			}
		})
	}

	switch settings.EventBroker {
	case config.BrokerRabbitMQ:
		mq, err := event.NewRabbitMQ(settings.RabbitMQ, log)
		if err != nil {
			return nil, err
		}
		subscribe(mq, settings.RabbitMQ.PushQueue)
		return mq, nil
	case config.BrokerKafka:
		k := event.NewKafka(settings.Kafka, log)
		subscribe(k, settings.Kafka.PushTopic)
		return k, nil
	}
	return event.Nop{}, nil
}
