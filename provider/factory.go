package provider

import (
	"time"

	"lumora/config"
)

const (
	defaultResponseHeaderTimeout = 60 * time.Second
	defaultRetryMax              = 2
)

// NewClient creates the gateway client described by the loaded
// configuration. The result satisfies model.ChatClient.
//
// Example:
//
//	cfg, _ := config.Load()
//	c, err := provider.NewClient(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewClient(cfg *config.Config) (*GatewayClient, error) {
	return NewGatewayClient(Config{
		URL:                   cfg.GatewayURL,
		APIKey:                cfg.APIKey,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		RetryMax:              defaultRetryMax,
	})
}
