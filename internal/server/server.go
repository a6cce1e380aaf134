package server

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/reqlab/reqlab/internal/docstore"
	"github.com/reqlab/reqlab/internal/errdef"
)

type Options struct {
	// ClientURL is the origin allowed by CORS, with and without a trailing
	// slash.
	ClientURL string
}

// New builds the demo backend: a REST surface under /api forwarding to the
// document store, every response wrapped in {success, data?, message?}.
func New(store *docstore.Store, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "reqlab sandbox",
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})

	clientURL := opts.ClientURL
	if clientURL == "" {
		clientURL = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join([]string{clientURL, clientURL + "/"}, ","),
		AllowMethods:     "GET,POST,PUT,DELETE",
		AllowCredentials: true,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Server is up and running for the reqlab sandbox")
	})

	registerRoutes(app.Group("/api"), store)
	return app
}

func ok(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "data": data})
}

func okMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "message": message})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

func failErr(c *fiber.Ctx, err error) error {
	return fail(c, fiber.StatusBadRequest, errdef.Message(err))
}

// decodeBody tolerates an empty body, the sandbox sends filters on GET and
// DELETE requests too.
func decodeBody(c *fiber.Ctx, into interface{}) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, into); err != nil {
		return errdef.Wrap(errdef.CodeParse, err, "decode request body")
	}
	return nil
}

// asInt accepts JSON numbers and numeric strings, the way parseInt treats
// request fields.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func sortSpec(raw map[string]interface{}) map[string]int {
	spec := make(map[string]int, len(raw))
	for field, direction := range raw {
		switch d := direction.(type) {
		case float64:
			spec[field] = int(d)
		case string:
			if d == "asc" || d == "ascending" {
				spec[field] = 1
			}
			if d == "desc" || d == "descending" {
				spec[field] = -1
			}
		}
	}
	return spec
}

func isNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound) ||
		errors.Is(err, docstore.ErrCollectionNotFound)
}
