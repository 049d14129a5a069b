// Package provider is the client side of the network boundary: it talks to
// the Lumora gateway and hands the chat core a raw server-sent-event body.
//
// # Architecture
//
//   - model.ChatClient defines the contract (interface)
//   - provider.GatewayClient implements it over HTTP
//   - provider.NewClient() builds a client from the loaded configuration
//   - provider/testutil holds scripted clients for tests
//
// # Usage
//
//	c, err := provider.NewClient(cfg)
//	if err != nil {
//	    // handle error
//	}
//	body, err := c.Stream(ctx, model.ChatRequest{Model: "openai/gpt-5", Messages: msgs})
//	if err != nil {
//	    var resp *model.ErrorResponse
//	    if errors.As(err, &resp) && resp.IsRateLimited() {
//	        // back off
//	    }
//	}
//	defer body.Close()
package provider

import "time"

// Note: The ChatClient interface is defined in the model package
// (model/provider.go) so the chat core and this package do not import each
// other.

// Config holds gateway client configuration.
type Config struct {
	// URL is the chat endpoint, e.g. http://localhost:8080/chat.
	URL    string
	APIKey string
	// ResponseHeaderTimeout bounds the wait for the gateway's status line.
	// The streamed body itself is not subject to a deadline.
	ResponseHeaderTimeout time.Duration
	// RetryMax is the number of extra attempts after a connection failure.
	RetryMax int
}
