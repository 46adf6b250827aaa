// Command oauth-init runs the one-time OAuth consent flow for the Sheets
// export and stores the resulting token.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"

	"famledger/internal/cli"
	"famledger/internal/log"
	"famledger/internal/sheets/google"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := google.OAuthConfig(google.Credentials{
		ClientJSON: os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"),
		ClientFile: os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"),
	})
	if err != nil {
		logger.Error("Set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE", log.FieldError, err)
		os.Exit(1)
	}

	// The OAuth client must list this redirect URI.
	redirectPort := os.Getenv("OAUTH_REDIRECT_PORT")
	if redirectPort == "" {
		redirectPort = "8085"
	}
	cfg.RedirectURL = "http://localhost:" + redirectPort + "/callback"

	state := fmt.Sprintf("famledger-%d", time.Now().UnixNano())
	codeCh := make(chan string, 1)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/callback", func(c *fiber.Ctx) error {
		if e := c.Query("error"); e != "" {
			return fiber.NewError(fiber.StatusBadRequest, "OAuth error: "+e)
		}
		if c.Query("state") != state {
			return fiber.NewError(fiber.StatusBadRequest, "state mismatch")
		}
		select {
		case codeCh <- c.Query("code"):
		default:
		}
		return c.SendString("You may close this window and return to the terminal.")
	})
	go func() {
		if err := app.Listen(":" + redirectPort); err != nil {
			logger.Error("Callback server error", log.FieldError, err)
		}
	}()
	defer app.ShutdownWithTimeout(time.Second)

	fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	var code string
	select {
	case code = <-codeCh:
	case <-time.After(5 * time.Minute):
		logger.Error("Authorization timed out")
		os.Exit(1)
	case <-sig:
		logger.Warn("Interrupted")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		logger.Error("Token exchange failed", log.FieldError, err)
		os.Exit(1)
	}

	outFile := os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")
	if outFile == "" {
		outFile = "token.json"
	}
	if err := google.WriteToken(outFile, tok); err != nil {
		logger.Error("Failed to save token", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Saved OAuth token", "path", outFile)
}
