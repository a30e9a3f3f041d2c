package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	apihandler "github.com/hzi-braunschweig/pia-notification-service/internal/api/handlers/notification"
	"github.com/hzi-braunschweig/pia-notification-service/internal/api/router"
	"github.com/hzi-braunschweig/pia-notification-service/internal/api/server"
	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/personaldataservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/questionnaireservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/clients/userservice"
	"github.com/hzi-braunschweig/pia-notification-service/internal/config"
	"github.com/hzi-braunschweig/pia-notification-service/internal/content"
	"github.com/hzi-braunschweig/pia-notification-service/internal/delivery"
	"github.com/hzi-braunschweig/pia-notification-service/internal/events"
	"github.com/hzi-braunschweig/pia-notification-service/internal/model"
	contactrepo "github.com/hzi-braunschweig/pia-notification-service/internal/repository/contact"
	labrepo "github.com/hzi-braunschweig/pia-notification-service/internal/repository/labresult"
	questrepo "github.com/hzi-braunschweig/pia-notification-service/internal/repository/questionnaire"
	schedulerepo "github.com/hzi-braunschweig/pia-notification-service/internal/repository/schedule"
	tokenrepo "github.com/hzi-braunschweig/pia-notification-service/internal/repository/token"
	"github.com/hzi-braunschweig/pia-notification-service/internal/scheduler"
	notifsvc "github.com/hzi-braunschweig/pia-notification-service/internal/service/notification"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/email"
	"github.com/hzi-braunschweig/pia-notification-service/pkg/fcm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	loc, err := time.LoadLocation(cfg.Notification.Timezone)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to load notification timezone")
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Retries, cfg.RabbitMQ.Pause)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to open channel")
	}

	eventQueue, err := events.NewEventQueue(ch, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create event queue")
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	schedules := schedulerepo.NewRepository(db)
	tokens := tokenrepo.NewRepository(db)
	questionnaires := questrepo.NewRepository(db)
	labResults := labrepo.NewRepository(db)
	contacts := contactrepo.NewRepository(db)

	dbNum, err := strconv.Atoi(cfg.Redis.Database)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse redis database")
	}

	rdb := redis.New(cfg.Redis.Address, cfg.Redis.Password, dbNum)
	if err = rdb.Ping(ctx).Err(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	smtpPort, err := strconv.Atoi(cfg.Email.SMTPPort)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse email smtp port")
	}

	mailer := email.NewClient(
		cfg.Email.SMTPHost,
		smtpPort,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.From,
	)

	pushClient, err := fcm.NewClient(ctx, cfg.Firebase.CredentialsFile)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create fcm client")
	}

	instances := questionnaireservice.NewClient(cfg.Services.QuestionnaireService)
	emails := personaldataservice.NewClient(cfg.Services.PersonalDataService, rdb, cfg.Retry)
	users := userservice.NewClient(cfg.Services.UserService)

	reminderContent := content.NewReminderStrategy(cfg.Services.WebappURL)
	sampleContent := content.NewSampleStrategy(cfg.Services.WebappURL)
	customContent := content.NewCustomStrategy()
	aggregatorContent := content.NewAggregatorStrategy()

	registry := delivery.Registry{
		model.TypeReminder: delivery.NewReminderStrategy(
			schedules, tokens, pushClient, instances, questionnaires,
			reminderContent, emails, mailer,
		),
		model.TypeSample: delivery.NewSampleStrategy(
			schedules, tokens, pushClient, labResults,
			sampleContent, emails, mailer,
		),
		model.TypeCustom: delivery.NewCustomStrategy(
			schedules, tokens, pushClient, customContent,
		),
		model.TypeAggregatorEmail: delivery.NewAggregatorStrategy(
			schedules, aggregatorContent, mailer,
		),
	}

	creator := scheduler.NewCreator(questionnaires, schedules, labResults, loc, cfg.Notification.DailyTime)
	dispatcher := scheduler.NewDispatcher(schedules, registry, cfg.Dispatch.RateLimit, cfg.Dispatch.MaxInFlight)
	reporter := scheduler.NewReporter(contacts, labResults, questionnaires, schedules)

	jobs := scheduler.NewJobs(loc, creator, dispatcher, reporter)
	if err := jobs.Start(ctx); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to start scheduler jobs")
	}

	eventHandler := events.NewHandler(labResults, schedules, questionnaires, contacts, loc, cfg.Notification.DailyTime)

	envelopes := make(chan events.Envelope)
	go eventHandler.Run(ctx, envelopes)
	go func() {
		if err := eventQueue.Consume(envelopes, cfg.Retry); err != nil {
			zlog.Logger.Error().Err(err).Msg("event consumer stopped")
		}
		close(envelopes)
	}()

	service := notifsvc.NewService(
		schedules, tokens, instances, labResults, users, emails, mailer,
		reminderContent, sampleContent, customContent,
	)

	handler := apihandler.NewHandler(service, val, cfg)
	r := router.New(handler)
	s := server.New(":"+cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	jobs.Stop()

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}

	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	if err := ch.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ channel")
	}

	if err := conn.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ connection")
	}
}
