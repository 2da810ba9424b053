package main

import (
	"context"
	"fmt"
	"time"

	chatsync "github.com/dispatchly/chatsync"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and connectivity status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, _ := configPath()

		fmt.Printf("Config:   %s\n", path)
		fmt.Printf("Base URL: %s\n", baseURL(cfg))
		if cfg.Auth.Token == "" {
			fmt.Println("Token:    (not set)")
			return nil
		}
		fmt.Println("Token:    set")
		if cfg.Auth.UserID != "" {
			fmt.Printf("User:     %s\n", cfg.Auth.UserID)
		}

		client := chatsync.NewClient(baseURL(cfg), chatsync.WithToken(cfg.Auth.Token))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		page, err := client.ListConversations(ctx, chatsync.ListFilters{PageSize: 1})
		if err != nil {
			fmt.Printf("API:      UNREACHABLE (%v)\n", err)
			return nil
		}
		fmt.Println("API:      OK")
		fmt.Printf("Unread:   %d across %d conversations\n",
			page.TotalUnread, page.Pagination.TotalItems)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
