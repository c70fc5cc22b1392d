package configuration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Nestcare/internal/conversation"
	"Nestcare/internal/handler"
	"Nestcare/internal/hub"
	"Nestcare/internal/metrics"
	"Nestcare/internal/repo"
	"Nestcare/internal/session"
	"Nestcare/internal/support"

	"go.uber.org/zap"
)

type Container struct {
	Config  Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Hub           *hub.Client
	Session       *session.Coordinator
	Conversations repo.ConversationRepository
	Messages      repo.MessageRepository
	Store         *conversation.Store
	Strategy      conversation.CompletionStrategy
	Support       *support.Queue

	StatusHandler handler.StatusHandler
}

// BuildContainer wires every component from config. Nothing connects
// until the session is told to.
func BuildContainer(config *Config) (*Container, error) {
	logger, err := NewLogger(config.Log.Level)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()

	hubClient := hub.NewClient(config.HubURL(),
		hub.WithLogger(logger),
		hub.WithMetrics(m),
	)

	coordinator := session.New(hubClient, config.API.Token,
		session.WithLogger(logger),
		session.WithOnConnected(func() {
			logger.Info("hub session connected", zap.String("url", hubClient.URL()))
		}),
		session.WithOnDisconnected(func(err error) {
			logger.Warn("hub session lost", zap.Error(err))
		}),
	)

	restClient := repo.NewClient(config.API.BaseURL, config.API.Token,
		repo.WithLogger(logger),
		repo.WithMetrics(m),
	)
	conversations := repo.NewConversationRepository(restClient)
	messages := repo.NewMessageRepository(restClient)

	strategy := conversation.NewStrategy(config.API.Streaming, messages, conversations,
		conversation.WithStreamingLogger(logger.Named("strategy")),
		conversation.WithStreamingMetrics(m),
	)

	store := conversation.NewStore()
	queue := support.NewQueue(coordinator, support.WithLogger(logger))

	return &Container{
		Config:        *config,
		Logger:        logger,
		Metrics:       m,
		Hub:           hubClient,
		Session:       coordinator,
		Conversations: conversations,
		Messages:      messages,
		Store:         store,
		Strategy:      strategy,
		Support:       queue,
		StatusHandler: handler.NewStatusHandler(coordinator, store, queue),
	}, nil
}

// NewConversation returns an unopened view-model sharing the container's
// session, store and completion strategy.
func (c *Container) NewConversation(opts ...conversation.Option) *conversation.Conversation {
	opts = append([]conversation.Option{
		conversation.WithLogger(c.Logger),
		conversation.WithMetrics(c.Metrics),
	}, opts...)
	return conversation.New(c.Session, c.Conversations, c.Store, c.Strategy, opts...)
}

// NewLogger builds a development logger for the debug level and a
// production logger otherwise.
func NewLogger(level string) (*zap.Logger, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = "info"
	}
	if level == "debug" {
		return zap.NewDevelopment()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// Close gracefully shuts down the hub session
func (c *Container) Close() error {
	if c.Support != nil {
		c.Support.Close()
	}

	var err error
	if c.Session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if derr := c.Session.Disconnect(ctx); derr != nil {
			err = fmt.Errorf("failed to disconnect hub session: %w", derr)
		}
		c.Session.Close()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return err
}
