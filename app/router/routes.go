// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/amirphl/Amaterasu/app/handlers"
	"github.com/amirphl/Amaterasu/app/middleware"
	"github.com/amirphl/Amaterasu/config"
	"github.com/amirphl/Amaterasu/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	cfg             *config.ProductionConfig
	customerHandler handlers.CustomerHandlerInterface
	audienceHandler *handlers.AudienceHandler
	campaignHandler handlers.CampaignHandlerInterface
	runHandler      handlers.RunHandlerInterface
	apiKey          *middleware.APIKeyMiddleware
	checks          []dependencyCheck
}

// dependencyCheck pings one dependency the service cannot work without
type dependencyCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	customerHandler handlers.CustomerHandlerInterface,
	audienceHandler *handlers.AudienceHandler,
	campaignHandler handlers.CampaignHandlerInterface,
	runHandler handlers.RunHandlerInterface,
) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Amaterasu API",
		ServerHeader: "Amaterasu",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:             app,
		cfg:             cfg,
		customerHandler: customerHandler,
		audienceHandler: audienceHandler,
		campaignHandler: campaignHandler,
		runHandler:      runHandler,
		apiKey: middleware.NewAPIKeyMiddleware(
			cfg.Security.RequireAPIKey,
			cfg.Security.APIKeyHeader,
			cfg.Security.AllowedAPIKeys,
			healthPath, cfg.Metrics.Path,
		),
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: rateLimitReached,
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	}))

	// Endpoints that accept a provider credential get a tighter budget
	triggerLimit := limiter.New(limiter.Config{
		Max:          30,
		Expiration:   1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string { return c.IP() },
		LimitReached: rateLimitReached,
	})

	customers := api.Group("/customers")
	customers.Post("/", r.customerHandler.CreateCustomer)
	customers.Get("/", r.customerHandler.ListCustomers)
	customers.Get("/:uuid", r.customerHandler.GetCustomer)
	customers.Get("/:uuid/media", r.customerHandler.ListMedia)
	customers.Post("/:uuid/media/upload", triggerLimit, r.customerHandler.UploadMedia)

	audience := api.Group("/audience")
	audience.Post("/upload", r.audienceHandler.Upload)
	audience.Get("/:uuid", r.audienceHandler.Get)

	campaigns := api.Group("/campaigns")
	campaigns.Post("/", r.campaignHandler.CreateCampaign)
	campaigns.Get("/", r.campaignHandler.ListCampaigns)
	campaigns.Get("/:uuid", r.campaignHandler.GetCampaign)
	campaigns.Put("/:uuid/media", r.campaignHandler.SelectMedia)
	campaigns.Post("/:uuid/run", triggerLimit, r.runHandler.RunNow)
	campaigns.Post("/:uuid/test", triggerLimit, r.runHandler.SendTest)

	scheduled := api.Group("/scheduled-runs")
	scheduled.Post("/", r.runHandler.Schedule)
	scheduled.Get("/", r.runHandler.ListScheduledRuns)
	scheduled.Get("/:uuid", r.runHandler.GetScheduledRun)
	scheduled.Post("/:uuid/token", triggerLimit, r.runHandler.SupplyToken)
	scheduled.Post("/:uuid/cancel", r.runHandler.Cancel)

	runs := api.Group("/runs")
	runs.Get("/", r.runHandler.ListRuns)
	runs.Get("/:uuid", r.runHandler.GetRun)
	runs.Get("/:uuid/log", r.runHandler.GetRunLog)
	runs.Post("/:uuid/log", r.runHandler.AppendRunLog)
	runs.Get("/:uuid/result", r.runHandler.DownloadRunResult)

	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-site",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins: r.cfg.Security.AllowedOrigins,
		AllowMethods: []string{
			"GET", "POST", "PUT", "HEAD", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-Requested-With",
			"X-Request-ID",
			r.cfg.Security.APIKeyHeader,
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"Content-Disposition",
		},
		MaxAge: utils.CORSMaxAge,
	}))

	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c fiber.Ctx) bool {
			// xlsx results are already zip-compressed
			return strings.HasSuffix(c.Path(), "/result")
		},
	}))

	// Request bodies are never logged: trigger payloads carry credentials.
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath || c.Path() == r.cfg.Metrics.Path
		},
	}))

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics(r.cfg.Metrics.Path))
	}

	r.app.Use(r.apiKey.Authenticate())

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
			)
		},
	}))
}

// AddHealthCheck registers a dependency check reported by /api/v1/health
func (r *FiberRouter) AddHealthCheck(name string, check func(ctx context.Context) error) {
	r.checks = append(r.checks, dependencyCheck{name: name, check: check})
}

func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status := "ok"
	deps := fiber.Map{}
	for _, hc := range r.checks {
		if err := hc.check(ctx); err != nil {
			log.Printf("health: %s check failed: %v", hc.name, err)
			deps[hc.name] = "down"
			status = "degraded"
			continue
		}
		deps[hc.name] = "up"
	}

	code := fiber.StatusOK
	message := "Service is healthy"
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
		message = "Service is degraded"
	}
	return c.Status(code).JSON(dto.APIResponse{
		Success: status == "ok",
		Message: message,
		Data: fiber.Map{
			"status":       status,
			"dependencies": deps,
			"timestamp":    utils.UTCNow().Unix(),
			"version":      "1.0.0",
			"service":      "amaterasu-api",
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": c.Locals("requestid"),
			},
		},
	})
}

func rateLimitReached(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error: dto.ErrorDetail{
			Code: "RATE_LIMIT_EXCEEDED",
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
			errorCode = "REQUEST_ERROR"
		}
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": c.Locals("requestid"),
			},
		},
	})
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
