package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	chatsync "github.com/dispatchly/chatsync"
	"github.com/spf13/cobra"
)

var (
	watchConversation string
	watchReconnect    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the live event stream",
	Long:  "Connect to the live channel and print incoming messages, typing signals,\nand membership changes until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := mustConfig()
		if cfg.Auth.UserID == "" {
			return fmt.Errorf("no user id. Run 'chatsync config set auth.user_id <id>' first")
		}

		channel := getChannel()
		defer channel.Disconnect()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		done := make(chan struct{}, 1)
		channel.Bind(chatsync.Handlers{
			OnNewMessage: func(ev chatsync.NewMessageEvent) {
				if watchConversation != "" && ev.ConversationID != watchConversation {
					return
				}
				fmt.Printf("[%s] %s #%s: %s\n",
					ev.Message.CreatedAt.Format(time.RFC3339), ev.SenderName, ev.ConversationID, ev.Message.Body)
			},
			OnParticipantAdded: func(ev chatsync.ParticipantAddedEvent) {
				if watchConversation != "" && ev.ConversationID != watchConversation {
					return
				}
				fmt.Printf("-- participant joined #%s\n", ev.ConversationID)
			},
			OnTyping: func(ev chatsync.TypingEvent) {
				if watchConversation != "" && ev.ConversationID != watchConversation {
					return
				}
				if ev.IsTyping {
					fmt.Printf("-- %s is typing in #%s\n", ev.UserName, ev.ConversationID)
				}
			},
			OnConnectionState: func(state chatsync.ConnState) {
				fmt.Fprintf(os.Stderr, "connection: %s\n", state)
				if state == chatsync.StateDisconnected {
					select {
					case done <- struct{}{}:
					default:
					}
				}
			},
		})

		if err := channel.Connect(ctx, cfg.Auth.UserID); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Watching. Press Ctrl-C to stop.")

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-done:
				if !watchReconnect {
					return fmt.Errorf("connection lost")
				}
				if err := channel.Reconnect(ctx, cfg.Auth.UserID); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Fprintf(os.Stderr, "reconnect failed: %v\n", err)
					// Signal another attempt; the channel backs off between dials.
					select {
					case done <- struct{}{}:
					default:
					}
				}
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchConversation, "conversation", "", "Only show events for one conversation")
	watchCmd.Flags().BoolVar(&watchReconnect, "reconnect", true, "Reconnect automatically when the connection drops")

	rootCmd.AddCommand(watchCmd)
}
