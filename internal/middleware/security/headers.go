// Package security sets response headers for the JSON API.
package security

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// HeadersConfig holds security headers configuration
type HeadersConfig struct {
	CSP string

	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CrossOriginResource string
	CacheControl        string
}

// DefaultHeadersConfig returns defaults for an API that serves no documents.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:                   "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
		CrossOriginResource:   "same-origin",
		CacheControl:          "no-store",
	}
}

// Headers returns middleware applying config to every response. HSTS is
// only sent over TLS.
func Headers(config HeadersConfig) fiber.Handler {
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d", config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *fiber.Ctx) error {
		set := func(k, v string) {
			if v != "" {
				c.Set(k, v)
			}
		}
		set(fiber.HeaderXContentTypeOptions, config.XContentTypeOptions)
		set(fiber.HeaderXFrameOptions, config.XFrameOptions)
		set(fiber.HeaderContentSecurityPolicy, config.CSP)
		set(fiber.HeaderReferrerPolicy, config.ReferrerPolicy)
		set("Cross-Origin-Resource-Policy", config.CrossOriginResource)
		set(fiber.HeaderCacheControl, config.CacheControl)
		if c.Protocol() == "https" {
			set(fiber.HeaderStrictTransportSecurity, hsts)
		}
		return c.Next()
	}
}
