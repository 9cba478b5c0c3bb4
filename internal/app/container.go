package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"meeting-bot/internal/config"
	"meeting-bot/internal/database"
	"meeting-bot/internal/database/migration"
	dbpostgres "meeting-bot/internal/database/postgres"
	"meeting-bot/internal/infrastructure/cache"
	"meeting-bot/internal/infrastructure/convex"
	"meeting-bot/internal/infrastructure/meeting"
	"meeting-bot/internal/pkg/jwt"
	"meeting-bot/internal/repository"
	"meeting-bot/internal/summary"
	"meeting-bot/internal/transcription"
	"meeting-bot/internal/usecase/meetingbot"
	"meeting-bot/internal/ws"
)

// Container owns every long-lived dependency of the bot service.
type Container struct {
	Config config.Config
	Logger *log.Logger

	DB      database.DB
	Cache   *cache.Redis
	Convex  *convex.Client
	Tokens  *jwt.HMACService
	Jobs    repository.BotJobRepository
	Manager *meetingbot.Manager
	Poller  *meetingbot.Poller
	Hub     *ws.Hub
}

func NewContainer(ctx context.Context, cfg config.Config, logger *log.Logger) (*Container, error) {
	if logger == nil {
		logger = log.Default()
	}
	c := &Container{Config: cfg, Logger: logger}

	jobs, err := c.openJobStore(ctx)
	if err != nil {
		return nil, err
	}
	c.Jobs = jobs

	c.Cache = cache.NewRedis(cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	c.Convex = convex.NewClient(cfg.Convex.URL, cfg.Convex.APIKey, logger)
	c.Tokens = jwt.NewHMACService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	c.Hub = ws.NewHub(logger)

	deps := meetingbot.Deps{
		Repo: jobs,
		Sessions: meeting.NewFactory(meeting.FactoryConfig{
			RecordingsDir: cfg.Bot.RecordingsDir,
			Headless:      cfg.Bot.Headless,
			ChromePath:    cfg.Bot.ChromePath,
			MaxDuration:   cfg.Bot.MaxDuration,
			Logger:        logger,
		}),
		Transcriber: newTranscriber(cfg.Transcription, c.Convex, c.Cache, logger),
		Reporter:    c.Convex,
		Logger:      logger,
	}
	if sum, err := summary.NewAnthropic(cfg.Summary.AnthropicAPIKey, cfg.Summary.Model, logger); err == nil {
		deps.Summarizer = sum
	} else {
		logger.Printf("[Summary] disabled err=%v", err)
	}

	c.Manager = meetingbot.NewManager(deps)
	c.Manager.AddNotifier(ws.NewNotifier(c.Hub))
	var issuer meetingbot.TokenIssuer
	if c.Tokens.Enabled() {
		issuer = c.Tokens
	}
	c.Manager.AddNotifier(meetingbot.NewCallbackNotifier(issuer, cfg.App.AppName, cfg.Auth.CallbackTTL, logger))

	if cfg.Bot.RecoverInterrupted {
		n, err := c.Manager.RecoverInterrupted(ctx)
		if err != nil {
			if c.DB != nil {
				_ = c.DB.Close()
			}
			return nil, err
		}
		if n > 0 {
			logger.Printf("[BotJob] recovered=%d status=failed", n)
		}
	}

	if cfg.Poller.Enabled && c.Convex.Enabled() {
		c.Poller = meetingbot.NewPoller(c.Convex, c.Manager, c.Cache, meetingbot.PollerConfig{
			Interval:    cfg.Poller.Interval,
			Workers:     cfg.Poller.Workers,
			JoinsPerMin: cfg.Poller.JoinsPerMin,
		}, logger)
	}

	return c, nil
}

func (c *Container) openJobStore(ctx context.Context) (repository.BotJobRepository, error) {
	if !c.Config.Database.Enabled() {
		c.Logger.Printf("[BotJob] store=memory")
		return repository.NewMemoryBotJobRepository(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := dbpostgres.Connect(connectCtx, c.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := (migration.Runner{Logger: c.Logger}).Run(ctx, db.SQLDB()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	c.DB = db
	c.Logger.Printf("[BotJob] store=postgres host=%s db=%s", c.Config.Database.DBHost, c.Config.Database.DBName)
	return repository.NewPostgresBotJobRepository(db), nil
}

func newTranscriber(cfg config.TranscriptionConfig, cvx *convex.Client, rc *cache.Redis, logger *log.Logger) *transcription.Service {
	registry := transcription.NewDefaultRegistry(transcription.Credentials{
		OpenAIKey:          cfg.OpenAIKey,
		SpeechmaticsKey:    cfg.SpeechmaticsKey,
		GladiaKey:          cfg.GladiaKey,
		AzureSpeechKey:     cfg.AzureSpeechKey,
		AzureSpeechRegion:  cfg.AzureSpeechRegion,
		AssemblyAIKey:      cfg.AssemblyAIKey,
		DeepgramKey:        cfg.DeepgramKey,
		GoogleCloudAPIKey:  cfg.GoogleCloudAPIKey,
		GoogleCloudProject: cfg.GoogleCloudProject,
	}, transcription.WithLogger(logger))
	logger.Printf("[Transcription] configured=%v", registry.Configured())

	var (
		selector transcription.ProviderSelector
		usage    transcription.UsageRecorder
	)
	if cvx.Enabled() {
		rotation := transcription.NewRotationCache(cvx, cvx, rc, time.Minute)
		selector, usage = rotation, rotation
	}
	svc := transcription.NewService(registry, selector, usage, logger)
	svc.SetPriority(cfg.Priority)
	svc.ForceProvider(cfg.Provider)
	return svc
}

// Close releases external connections. Call after the manager has shut down.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
