package handlers

import "github.com/gofiber/fiber/v2"

// success and failure write the admin JSON envelope. Structured failures use
// status 200 so the client reads the message from data.
func success(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func failure(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "data": msg})
}
