package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/fentz26/taskdeck/internal/client"
	"github.com/fentz26/taskdeck/internal/logging"
	"github.com/fentz26/taskdeck/internal/resilience"
)

// newAPIClient returns a client for one-shot commands and the function that
// releases it. Requests still go through the gateway so failures are logged
// the same way the dashboard logs them.
func newAPIClient() (*client.Client, func()) {
	logger := logging.NewConsole(os.Stderr, "error")
	state := resilience.NewConnectionState()
	registry := resilience.NewIntervalRegistry(nil, logger)
	gw := resilience.NewGateway(resilience.GatewayConfig{BaseURL: cfg.APIBaseURL},
		&http.Client{Timeout: cfg.RequestTimeout.Duration}, state, registry, logger)
	return client.New(gw), gw.Close
}

// apiError turns a client error into a message for the terminal.
func apiError(action string, err error) error {
	var be *client.BusinessError
	var httpErr *resilience.HTTPError
	switch {
	case errors.As(err, &be):
		return fmt.Errorf("%s: %s", action, be.Error())
	case errors.As(err, &httpErr):
		return fmt.Errorf("%s: server returned %d", action, httpErr.StatusCode)
	case errors.Is(err, resilience.ErrTransport):
		return fmt.Errorf("%s: backend at %s is unreachable", action, cfg.APIBaseURL)
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

func printMessage(msg, fallback string) {
	if strings.TrimSpace(msg) == "" {
		msg = fallback
	}
	fmt.Println(msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
