package provider

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"lumora/config"
)

// PingGatewayMsg is sent when the startup health check completes.
type PingGatewayMsg struct {
	URL   string
	Valid bool
	Err   error
}

// PingGateway checks the configured gateway in the background so the UI can
// warn early instead of failing on the first message.
func PingGateway(client *GatewayClient, gatewayURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] gateway ping failed: %v", err)
			}
			return PingGatewayMsg{URL: gatewayURL, Valid: false, Err: err}
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] gateway %s reachable", gatewayURL)
		}
		return PingGatewayMsg{URL: gatewayURL, Valid: true}
	}
}
