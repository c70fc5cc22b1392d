package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	approuters "Nestcare/internal/app_routers"
	"Nestcare/internal/configuration"
	"Nestcare/internal/conversation"
	"Nestcare/internal/model"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	config, err := configuration.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	container, err := configuration.BuildContainer(config)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}
	logger := container.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var statusServer *http.Server
	if config.Server.StatusPort > 0 {
		statusServer = approuters.NewStatusServer(container)
		go func() {
			logger.Info("status server starting", zap.String("addr", statusServer.Addr))
			if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server error", zap.Error(err))
			}
		}()
	}

	// The AI path only needs REST, so a hub failure is not fatal.
	if err := container.Session.Connect(ctx); err != nil {
		logger.Warn("hub unavailable, staff messaging disabled until reconnect", zap.Error(err))
	}

	conv, err := openConversation(ctx, container)
	if err != nil {
		logger.Error("failed to open conversation", zap.Error(err))
		shutdown(container, nil, statusServer)
		os.Exit(1)
	}

	r := newRenderer(os.Stdout, container.Session.UserID())
	unsubscribe := container.Store.Subscribe(func(id int64, st conversation.State) {
		if id == conv.ID() {
			r.render(st)
		}
	})
	defer unsubscribe()
	r.render(conv.State())

	fmt.Println("Type a message. Commands: /support [reason], /retry <id>, /quit")
	repl(ctx, conv, logger)

	shutdown(container, conv, statusServer)
}

func openConversation(ctx context.Context, container *configuration.Container) (*conversation.Conversation, error) {
	id := container.Config.ConversationID
	if id == 0 {
		created, err := container.Conversations.CreateConversation(ctx, model.CreateConversationRequest{})
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		id = created.ID
		container.Logger.Info("conversation created", zap.Int64("conversation_id", id))
	}

	conv := container.NewConversation()
	if err := conv.Open(ctx, id); err != nil {
		return nil, err
	}
	return conv, nil
}

func repl(ctx context.Context, conv *conversation.Conversation, logger *zap.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, conv, strings.TrimSpace(line), logger); quit {
				return
			}
		}
	}
}

func handleLine(ctx context.Context, conv *conversation.Conversation, line string, logger *zap.Logger) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	var err error
	switch cmd {
	case "":
		return false
	case "/quit":
		return true
	case "/support":
		err = conv.RequestSupport(ctx, arg)
	case "/retry":
		err = conv.Retry(ctx, model.MessageID(strings.TrimSpace(arg)))
	default:
		_, err = conv.Send(ctx, line)
	}
	if err != nil && ctx.Err() == nil {
		logger.Debug("command failed", zap.String("command", cmd), zap.Error(err))
	}
	return false
}

func shutdown(container *configuration.Container, conv *conversation.Conversation, statusServer *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if conv != nil {
		if err := conv.Close(ctx); err != nil {
			container.Logger.Warn("leave conversation failed", zap.Error(err))
		}
	}

	if err := container.Close(); err != nil {
		log.Printf("Container close error: %v", err)
	}

	if statusServer != nil {
		if err := statusServer.Shutdown(ctx); err != nil {
			log.Printf("Status server shutdown error: %v", err)
		}
	}
	log.Println("Graceful shutdown complete")
}
