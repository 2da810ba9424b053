package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	chatsync "github.com/dispatchly/chatsync"
	"github.com/spf13/cobra"
)

var (
	// conversations list
	conversationsQuery    string
	conversationsPage     int
	conversationsPageSize int
	conversationsJSON     bool

	// messages
	messagesPage int
	messagesJSON bool
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage conversations",
	Long:  "List conversations and read their message history.",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		page, err := client.ListConversations(ctx, chatFilters())
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if conversationsJSON {
			b, _ := json.MarshalIndent(page, "", "  ")
			fmt.Println(string(b))
			return nil
		}

		if len(page.Conversations) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		for _, c := range page.Conversations {
			unread := ""
			if c.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
			}
			title := c.Title
			if title == "" {
				title = string(c.Kind)
			}
			preview := ""
			if c.LastMessage != nil {
				preview = " - " + c.LastMessage.SenderName + ": " + c.LastMessage.Preview
			}
			fmt.Printf("  %s: %s%s%s\n", c.ID, title, unread, preview)
		}
		fmt.Printf("Page %d/%d, %d unread total\n",
			page.Pagination.Page, page.Pagination.TotalPages, page.TotalUnread)
		return nil
	},
}

var conversationsReadCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark a conversation as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.MarkRead(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Conversation %s marked as read.\n", args[0])
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Get messages from a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		page, err := client.ListMessages(ctx, args[0], messagesPage)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if messagesJSON {
			b, _ := json.MarshalIndent(page, "", "  ")
			fmt.Println(string(b))
			return nil
		}

		if len(page.Messages) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		for _, msg := range page.Messages {
			name := msg.SenderName
			if name == "" {
				name = msg.SenderID
			}
			fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format(time.RFC3339), name, msg.Body)
		}
		return nil
	},
}

func chatFilters() chatsync.ListFilters {
	return chatsync.ListFilters{
		Query:    conversationsQuery,
		Page:     conversationsPage,
		PageSize: conversationsPageSize,
	}
}

func init() {
	conversationsListCmd.Flags().StringVar(&conversationsQuery, "query", "", "Filter by title or participant name")
	conversationsListCmd.Flags().IntVar(&conversationsPage, "page", 1, "Page number")
	conversationsListCmd.Flags().IntVarP(&conversationsPageSize, "limit", "n", 0, "Page size")
	conversationsListCmd.Flags().BoolVar(&conversationsJSON, "json", false, "Output raw JSON")

	messagesCmd.Flags().IntVar(&messagesPage, "page", 1, "History page (1 is the newest)")
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "Output raw JSON")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsReadCmd)

	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(messagesCmd)
}
