package server

import (
	"github.com/gofiber/fiber/v2"
)

func (app *App) listMembers(c *fiber.Ctx) error {
	vacationId := c.Params("vacationId")
	return c.JSON(app.registry.Rooms.MembersOf(vacationId))
}

func (app *App) getPresence(c *fiber.Ctx) error {
	vacationId := c.Params("vacationId")
	return c.JSON(app.registry.Presence.Snapshot(vacationId))
}

func (app *App) getLocations(c *fiber.Ctx) error {
	vacationId := c.Params("vacationId")
	return c.JSON(app.registry.Locations.Latest(vacationId))
}
