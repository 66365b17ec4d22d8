package server

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/makeasinger/lipsync/internal/handler"
	"github.com/makeasinger/lipsync/internal/logger"
	"github.com/makeasinger/lipsync/internal/middleware"
	ws "github.com/makeasinger/lipsync/internal/websocket"
	"github.com/makeasinger/lipsync/pkg/response"
)

// Deps is everything the HTTP surface is built from
type Deps struct {
	Log            *logger.Logger
	Authenticate   fiber.Handler
	JobsRateLimit  fiber.Handler
	Jobs           *handler.JobHandler
	Webhooks       *handler.WebhookHandler
	Auth           *handler.AuthHandler
	Hub            *ws.Hub
	LipsyncSecret  string
	CaptionsSecret string
	// Services reports which integrations are configured, for /health
	Services map[string]bool
}

// NewApp builds the Fiber app with every route registered
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(d.Log),
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(d.Log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": d.Services,
		})
	})
	if d.Auth != nil {
		app.Get("/auth/verify", d.Auth.Verify)
	}

	// Provider callbacks carry no user token; the owner comes from the query.
	hooks := app.Group("/webhooks")
	hooks.Post("/lipsync", middleware.WebhookSignature(d.LipsyncSecret), d.Webhooks.Lipsync)
	hooks.Post("/captions", middleware.WebhookSignature(d.CaptionsSecret), d.Webhooks.Captions)

	api := app.Group("/api", d.Authenticate)
	jobs := api.Group("/jobs")
	if d.JobsRateLimit != nil {
		jobs.Post("/", d.JobsRateLimit, d.Jobs.Create)
	} else {
		jobs.Post("/", d.Jobs.Create)
	}
	jobs.Get("/:jobId", d.Jobs.Get)
	api.Get("/videos", d.Jobs.ListVideos)

	if d.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/jobs/:jobId",
			middleware.QueryToken("token"),
			d.Authenticate,
			d.Jobs.AuthorizeWatch,
			websocket.New(func(c *websocket.Conn) {
				d.Hub.HandleConnection(c, c.Params("jobId"))
			}),
		)
	}

	return app
}

func requestLogger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug("request",
			"requestId", c.GetRespHeader(fiber.HeaderXRequestID),
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start).String(),
		)
		return err
	}
}

func errorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			log.Error("unhandled error", "path", c.Path(), "error", err)
		}

		return response.Error(c, code, response.CodeServiceError, message, nil)
	}
}
