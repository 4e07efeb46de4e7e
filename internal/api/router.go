package api

import (
	"errors"

	"fin-analyzer/docs"
	"fin-analyzer/internal/api/handlers"
	"fin-analyzer/pkg/auth"
	"fin-analyzer/pkg/config"
	"fin-analyzer/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

type Handlers struct {
	Document *handlers.DocumentHandler
	Health   *handlers.HealthHandler
	// Blob is nil unless the local blob backend is in use.
	Blob *handlers.BlobHandler
}

func SetupRouter(
	h Handlers,
	jwtManager *auth.JWTManager,
	serverCfg config.ServerConfig,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
		BodyLimit:    serverCfg.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	_ = docs.SwaggerInfo // registers the swagger spec through init()
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", h.Health.Health)

	protected := app.Group("/api/v1", middleware.AuthMiddleware(jwtManager, appLogger))

	documents := protected.Group("/documents")
	documents.Post("/upload-url", h.Document.RequestUploadURL)
	documents.Post("/upload", h.Document.UploadDocument)
	documents.Post("", h.Document.CreateDocument)
	documents.Get("", h.Document.ListDocuments)
	documents.Get("/:id", h.Document.GetDocument)
	documents.Delete("/:id", h.Document.DeleteDocument)
	documents.Post("/:id/process", h.Document.ProcessDocument)
	documents.Get("/:id/export", h.Document.ExportDocument)

	if h.Blob != nil {
		protected.Put("/blobs/:ref", h.Blob.PutBlob)
	}

	return app
}
