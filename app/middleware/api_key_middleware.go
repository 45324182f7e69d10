// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"

	"github.com/amirphl/Amaterasu/app/dto"
	"github.com/gofiber/fiber/v3"
)

// APIKeyMiddleware gates operator endpoints behind a static key list
type APIKeyMiddleware struct {
	header   string
	keys     [][]byte
	required bool
	skip     map[string]struct{}
}

// NewAPIKeyMiddleware creates the gate. Paths in skip are always let through.
func NewAPIKeyMiddleware(required bool, header string, keys []string, skip ...string) *APIKeyMiddleware {
	if header == "" {
		header = "X-API-Key"
	}
	m := &APIKeyMiddleware{
		header:   header,
		required: required,
		skip:     make(map[string]struct{}, len(skip)),
	}
	for _, k := range keys {
		if k != "" {
			m.keys = append(m.keys, []byte(k))
		}
	}
	for _, p := range skip {
		m.skip[p] = struct{}{}
	}
	return m
}

// Authenticate rejects requests without a known API key
func (m *APIKeyMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !m.required {
			return c.Next()
		}
		if _, ok := m.skip[c.Path()]; ok {
			return c.Next()
		}

		apiKey := c.Get(m.header)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "API key is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_API_KEY",
				},
			})
		}

		if !m.valid([]byte(apiKey)) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid API key",
				Error: dto.ErrorDetail{
					Code: "INVALID_API_KEY",
				},
			})
		}

		return c.Next()
	}
}

func (m *APIKeyMiddleware) valid(candidate []byte) bool {
	found := 0
	for _, k := range m.keys {
		found |= subtle.ConstantTimeCompare(candidate, k)
	}
	return found == 1
}
