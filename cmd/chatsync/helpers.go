package main

import (
	"fmt"
	"os"

	chatsync "github.com/dispatchly/chatsync"
)

// getClient creates an authenticated REST client from the config file.
func getClient() *chatsync.Client {
	cfg := mustConfig()
	return chatsync.NewClient(baseURL(cfg), chatsync.WithToken(cfg.Auth.Token))
}

// getChannel creates a live event channel from the config file.
func getChannel() *chatsync.EventChannel {
	cfg := mustConfig()
	return chatsync.NewEventChannel(baseURL(cfg), cfg.Auth.Token, nil)
}

func mustConfig() *Config {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "No token. Run 'chatsync config set auth.token <token>' first.")
		os.Exit(1)
	}
	return cfg
}

func baseURL(cfg *Config) string {
	if cfg.Default.BaseURL != "" {
		return cfg.Default.BaseURL
	}
	return "https://api.dispatchly.io"
}
