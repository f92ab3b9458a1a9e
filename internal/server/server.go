package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/dgplabs/dgpscan/internal/capture"
	"github.com/dgplabs/dgpscan/internal/config"
	"github.com/dgplabs/dgpscan/internal/inference"
	"github.com/dgplabs/dgpscan/internal/workflow"
)

//go:embed templates/page.html
var templatesFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templatesFS, "templates/page.html"))

type ErrorResponse struct {
	Error string `json:"error"`
}

// Server exposes the scan workflow over HTTP, one workflow per browser
// session.
type Server struct {
	app        *fiber.App
	analyzer   inference.Analyzer
	previews   *capture.Previews
	sessions   *sessions
	cookieName string
	now        func() time.Time
	ctx        context.Context
	cancel     context.CancelFunc
}

type Option func(*Server)

// WithAccessLog sends the HTTP access log to w.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) {
		s.app.Use(logger.New(logger.Config{Output: w}))
	}
}

// WithClock overrides the time source used for report stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(cfg *config.Config, analyzer inference.Analyzer, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		analyzer:   analyzer,
		previews:   capture.NewPreviews(),
		cookieName: cfg.Session.CookieName,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.app = fiber.New(fiber.Config{
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
		// Form values and cookies outlive the request in session state.
		Immutable: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
		},
	})
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = newSessions(cfg.Session.Capacity, func() *workflow.Controller {
		return workflow.New(s.analyzer, s.previews,
			workflow.WithContext(s.ctx),
			workflow.WithClock(func() time.Time { return s.now() }),
		)
	})

	s.app.Use(cors.New(cors.Config{AllowOrigins: cfg.Server.AllowOrigins}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now(),
		})
	})

	s.app.Get("/", s.index)
	s.app.Post("/image", s.selectImage)
	s.app.Get("/preview/:id", s.preview)
	s.app.Post("/patient", s.submitPatient)
	s.app.Post("/dismiss", s.dismiss)
	s.app.Post("/reset", s.reset)
	s.app.Get("/report", s.report)
	s.app.Get("/report.cbor", s.reportCBOR)

	api := s.app.Group("/api")
	api.Get("/state", s.state)
	api.Post("/analyze", s.analyze)
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	log.Printf("Server starting on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests, abandons in-flight analyses and waits
// for them to return.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.cancel()
	s.sessions.resetAll()
	return err
}

// controller resolves the session cookie, issuing a new one if needed.
func (s *Server) controller(c *fiber.Ctx) *workflow.Controller {
	id, ctrl := s.sessions.get(c.Cookies(s.cookieName))
	c.Cookie(&fiber.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return ctrl
}
