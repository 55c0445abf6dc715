package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/chatstream/api/worker"
	"github.com/papercomputeco/chatstream/pkg/completion"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/eventstream/nop"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

const defaultServiceName = "chatstream-api"

// Server is the completion server.
type Server struct {
	config    Config
	driver    storage.Driver
	generator completion.Generator
	pool      *worker.Pool
	logger    *slog.Logger
	app       *fiber.App

	// tokenRate holds the float64 bits of the current tokens/sec limit.
	tokenRate atomic.Uint64

	// ctx is cancelled on Shutdown and parents every streaming turn.
	ctx     context.Context
	cancel  context.CancelFunc
	streams sync.WaitGroup
}

// NewServer creates a new API server.
// The driver and generator are injected so the server can run against any
// storage backend and completion source.
func NewServer(config Config, driver storage.Driver, generator completion.Generator, publisher eventstream.Publisher, log *slog.Logger) (*Server, error) {
	if driver == nil {
		return nil, errors.New("api server requires a storage driver")
	}
	if generator == nil {
		return nil, errors.New("api server requires a generator")
	}
	if publisher == nil {
		publisher = nop.NewPublisher()
	}
	if log == nil {
		log = logger.Nop()
	}
	if config.ServiceName == "" {
		config.ServiceName = defaultServiceName
	}

	pool, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    config,
		driver:    driver,
		generator: generator,
		pool:      pool,
		logger:    log,
		app:       app,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.SetTokenRate(config.TokenRate)

	app.Get("/ping", s.handlePing)

	apiGroup := app.Group("/api")
	if config.AuthToken != "" {
		apiGroup.Use(keyauth.New(keyauth.Config{
			KeyLookup:  "header:" + fiber.HeaderAuthorization,
			AuthScheme: "Bearer",
			Validator:  s.validateToken,
			ErrorHandler: func(c *fiber.Ctx, _ error) error {
				return c.Status(fiber.StatusUnauthorized).JSON(conversation.ErrorResponse{Error: "authentication required"})
			},
		}))
	}

	apiGroup.Get("/conversations", s.handleListConversations)
	apiGroup.Post("/conversations", s.handleCreateConversation)
	apiGroup.Get("/conversations/:id/messages", s.handleMessages)
	apiGroup.Post("/chat/stream", s.handleStream)

	return s, nil
}

func (s *Server) validateToken(_ *fiber.Ctx, key string) (bool, error) {
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.AuthToken)) != 1 {
		return false, keyauth.ErrMissingOrMalformedAPIKey
	}
	return true, nil
}

// SetTokenRate changes the per-stream token rate. Streams in flight pick
// up the new rate on their next token.
func (s *Server) SetTokenRate(perSecond float64) {
	if perSecond < 0 || math.IsNaN(perSecond) {
		perSecond = 0
	}
	s.tokenRate.Store(math.Float64bits(perSecond))
}

// TokenRate returns the current per-stream token rate.
func (s *Server) TokenRate() float64 {
	return math.Float64frombits(s.tokenRate.Load())
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"generator", s.generator.Name(),
		"auth", s.config.AuthToken != "",
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown cancels in-flight streams, stops the HTTP server and drains the
// worker pool.
func (s *Server) Shutdown() error {
	s.cancel()
	err := s.app.Shutdown()
	s.streams.Wait()
	s.pool.Close()
	return err
}
