package auth

import (
	"github.com/labstack/echo/v4"
)

// probePaths are hit by load balancers and the metrics scraper.
var probePaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// publicPaths are route patterns served without a token: the probes plus the
// patient-facing booking form.
var publicPaths = map[string]bool{
	"/api/v1/book": true,
}

func init() {
	for p := range probePaths {
		publicPaths[p] = true
	}
}

// AuthSkipper returns true for requests whose path should skip
// authentication. Pass it as JWTConfig.Skipper.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path bypasses auth.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// IsProbePath reports whether path is a health or metrics endpoint.
func IsProbePath(path string) bool {
	return probePaths[path]
}
