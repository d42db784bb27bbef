package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxDocumentSize     int
	MaxCommentLength    int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if cfg.MaxCommentLength == 0 {
		cfg.MaxCommentLength = 5000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		path := c.Path()

		if strings.Contains(path, "/api/v1/analyze") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			text, ok := req["document_text"].(string)
			if !ok || strings.TrimSpace(text) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "document_text is required and must be a string",
				})
			}

			if len(text) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Document exceeds maximum size",
				})
			}
		}

		if strings.Contains(path, "/api/v1/historical-data") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			text, ok := req["rfp_text"].(string)
			if !ok || strings.TrimSpace(text) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "rfp_text is required and must be a string",
				})
			}

			if len(text) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Document exceeds maximum size",
				})
			}

			if proposal, ok := req["proposal_text"].(string); ok && len(proposal) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Document exceeds maximum size",
				})
			}
		}

		if strings.Contains(path, "/api/v1/feedback") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			if comments, ok := req["comments"].(string); ok {
				if len(comments) > cfg.MaxCommentLength {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "Comments exceed maximum length",
					})
				}

				if xssPattern.MatchString(comments) {
					cfg.Logger.Warn("Potential XSS attempt in feedback comments",
						zap.String("ip", c.IP()),
					)
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "Invalid comment content",
					})
				}
			}
		}

		return c.Next()
	}
}
