package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/idempotency"
	"github.com/gofiber/fiber/v2/middleware/logger"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/gofiber/contrib/websocket"
	pkg "github.com/wanderparty/tripchat/pkg/internal"
	"github.com/wanderparty/tripchat/pkg/internal/services"
)

type App struct {
	A        *fiber.App
	registry *services.Registry
}

func NewServer(registry *services.Registry) *App {
	app := &App{
		A: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			EnableIPValidation:    true,
			ServerHeader:          "WanderParty.Tripchat",
			AppName:               "WanderParty.Tripchat",
			ProxyHeader:           fiber.HeaderXForwardedFor,
			JSONEncoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
			JSONDecoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
			BodyLimit:             16 * 1024 * 1024,
			EnablePrintRoutes:     viper.GetBool("debug.print_routes"),
		}),
		registry: registry,
	}

	app.A.Use(idempotency.New())
	app.A.Use(cors.New(cors.Config{
		AllowCredentials: true,
		AllowMethods: strings.Join([]string{
			fiber.MethodGet,
			fiber.MethodPost,
			fiber.MethodHead,
			fiber.MethodOptions,
			fiber.MethodPut,
			fiber.MethodDelete,
			fiber.MethodPatch,
		}, ","),
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
	}))

	app.A.Use(logger.New(logger.Config{
		Format: "${status} | ${latency} | ${method} ${path}\n",
		Output: log.Logger,
	}))

	app.A.Get("/.well-known", getMetadata)

	api := app.A.Group("/api").Name("API")
	{
		api.Get("/ws", authMiddleware, websocket.New(app.partyGateway))

		vacations := api.Group("/vacations/:vacationId", authMiddleware).Name("Vacations API")
		{
			vacations.Get("/members", app.listMembers)
			vacations.Get("/presence", app.getPresence)
			vacations.Get("/locations", app.getLocations)

			vacations.Get("/messages", app.listMessages)
			vacations.Get("/messages/search", app.searchMessages)
			vacations.Get("/messages/:messageId", app.getMessage)
			vacations.Post("/messages", app.newMessage)
			vacations.Put("/messages/:messageId", app.editMessage)
			vacations.Delete("/messages/:messageId", app.deleteMessage)
			vacations.Post("/messages/:messageId/reactions", app.reactMessage)
			vacations.Post("/messages/:messageId/pin", app.pinMessage)
			vacations.Delete("/messages/:messageId/pin", app.unpinMessage)
		}
	}

	return app
}

func getMetadata(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    "WanderParty.Tripchat",
		"version": pkg.AppVersion,
	})
}

func (app *App) Listen() {
	if err := app.A.Listen(viper.GetString("bind")); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when starting server...")
	}
}
