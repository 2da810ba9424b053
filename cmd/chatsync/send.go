package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	sendJSON bool

	groupCreateMembers     string
	groupCreateDescription string
	groupCreateJSON        bool

	directJSON bool
)

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a message to a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID, body := args[0], args[1]
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		msg, err := client.SendMessage(ctx, conversationID, body, uuid.NewString())
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if sendJSON {
			b, _ := json.MarshalIndent(msg, "", "  ")
			fmt.Println(string(b))
			return nil
		}

		fmt.Printf("Message sent to conversation %s\n", conversationID)
		fmt.Printf("  Message ID: %s\n", msg.ID)
		fmt.Printf("  Body:       %s\n", msg.Body)
		return nil
	},
}

var directCmd = &cobra.Command{
	Use:   "direct <user-id>",
	Short: "Open (or create) a direct conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		conv, err := client.CreateDirectConversation(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if directJSON {
			b, _ := json.MarshalIndent(conv, "", "  ")
			fmt.Println(string(b))
			return nil
		}

		fmt.Printf("Conversation: %s\n", conv.ID)
		return nil
	},
}

var groupCreateCmd = &cobra.Command{
	Use:   "group-create <name>",
	Short: "Create a group conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var members []string
		for _, m := range strings.Split(groupCreateMembers, ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}

		conv, err := client.CreateGroup(ctx, name, groupCreateDescription, members)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if groupCreateJSON {
			b, _ := json.MarshalIndent(conv, "", "  ")
			fmt.Println(string(b))
			return nil
		}

		fmt.Printf("Group created: %s\n", conv.ID)
		fmt.Printf("  Title:   %s\n", conv.Title)
		fmt.Printf("  Members: %d\n", len(conv.Participants))
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Output raw JSON")

	directCmd.Flags().BoolVar(&directJSON, "json", false, "Output raw JSON")

	groupCreateCmd.Flags().StringVar(&groupCreateMembers, "members", "", "Comma-separated list of member user IDs")
	groupCreateCmd.Flags().StringVar(&groupCreateDescription, "description", "", "Group description")
	groupCreateCmd.Flags().BoolVar(&groupCreateJSON, "json", false, "Output raw JSON")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(directCmd)
	rootCmd.AddCommand(groupCreateCmd)
}
