package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/clientconfig"
	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/network"
	"github.com/spf13/cobra"
)

var (
	userID         string
	peerID         string
	postID         string
	conversationID string
	configPath     string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "wx-help-chat",
		Short: "Terminal chat client for marketplace conversations",
		RunE:  runClient,
	}

	rootCmd.Flags().StringVarP(&userID, "user", "u", "", "your openid (required)")
	rootCmd.Flags().StringVarP(&peerID, "to", "t", "", "openid of the other participant (required)")
	rootCmd.Flags().StringVarP(&postID, "post", "p", "", "post the conversation is about")
	rootCmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "existing conversation id (skips find-or-create)")
	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default ./configs/config.yaml)")
	_ = rootCmd.MarkFlagRequired("user")
	_ = rootCmd.MarkFlagRequired("to")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := clientconfig.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New("development", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	api := network.NewAPIClient(cfg.Server.APIURL, userID, cfg.HTTPTimeout)

	if conversationID == "" {
		if peerID == userID {
			return errors.New(domain.NoticeSelfMessage)
		}
		conversationID, err = api.FindOrCreate(ctx, postID, peerID)
		if err != nil {
			return fmt.Errorf("find or create conversation: %w", err)
		}
	}

	bus := network.NewEventBus()
	bus.Subscribe(printEvent)

	conn := network.NewConn(network.ConnOptions{
		URL:    cfg.Server.URL,
		UserID: userID,
		Retry: network.RetryPolicy{
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			BaseDelay:   cfg.Reconnect.Delay,
			MaxDelay:    cfg.Reconnect.MaxDelay,
			Multiplier:  cfg.Reconnect.Multiplier,
		},
	}, bus, log)
	defer conn.Close()

	session := network.NewSession(network.SessionConfig{
		UserID:         userID,
		ConversationID: conversationID,
		PeerID:         peerID,
		Transport:      conn,
		Fallback:       api,
		Bus:            bus,
		Log:            log,
	})

	// A failed first dial is retried in the background; sends fall back to HTTP.
	if err := conn.Connect(ctx); err != nil {
		log.Warn("socket unavailable", "error", err)
	}
	_ = session.JoinRoom()

	if _, err := session.LoadHistory(ctx, 1, domain.DefaultPageSize); err != nil {
		log.Warn("could not load history", "conversationId", conversationID, "error", err)
	}
	for _, m := range session.Timeline().Messages() {
		fmt.Println(formatMessage(m))
	}
	if _, err := session.MarkRead(ctx); err != nil {
		log.Debug("mark read failed", "error", err)
	}

	return handleStdin(ctx, session)
}

// handleStdin reads commands until EOF or /quit.
func handleStdin(ctx context.Context, session *network.Session) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Type a message, or /image <url>, /retry [id], /typing, /stop, /online, /read, /quit")
	fmt.Print("> ")

	for {
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if err != nil && input == "" {
			return nil
		}
		if input == "" {
			fmt.Print("> ")
			continue
		}

		cmd, rest, _ := strings.Cut(input, " ")
		switch {
		case !strings.HasPrefix(input, "/"):
			report(session.Send(ctx, input, domain.MessageTypeText))
		case cmd == "/image":
			report(session.Send(ctx, strings.TrimSpace(rest), domain.MessageTypeImage))
		case cmd == "/retry":
			tempID := strings.TrimSpace(rest)
			if tempID == "" {
				tempID = lastFailed(session)
			}
			if tempID == "" {
				fmt.Printf("\r[ERROR] nothing to retry\n")
			} else {
				report(session.Retry(ctx, tempID))
			}
		case cmd == "/typing":
			_ = session.Typing(false)
		case cmd == "/stop":
			_ = session.Typing(true)
		case cmd == "/online":
			_ = session.RequestOnlineStatus()
		case cmd == "/read":
			n, err := session.MarkRead(ctx)
			if err != nil {
				fmt.Printf("\r[ERROR] %v\n", err)
			} else {
				fmt.Printf("\r[SYSTEM] marked %d message(s) read\n", n)
			}
		case cmd == "/quit":
			_ = session.LeaveRoom()
			return nil
		default:
			fmt.Printf("\r[ERROR] unknown command %s\n", cmd)
		}
		fmt.Print("> ")
	}
}

func report(m network.LocalMessage, err error) {
	if err != nil {
		if m.ClientTempID != "" {
			fmt.Printf("\r[FAILED %s] %v (use /retry)\n", m.ClientTempID, err)
			return
		}
		fmt.Printf("\r[ERROR] %v\n", err)
		return
	}
	fmt.Printf("\r%s\n", formatMessage(m))
}

func lastFailed(session *network.Session) string {
	msgs := session.Timeline().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsFailed() {
			return msgs[i].ClientTempID
		}
	}
	return ""
}

func formatMessage(m network.LocalMessage) string {
	ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
	content := m.Content
	if m.Type == domain.MessageTypeImage {
		content = "[图片] " + content
	}
	var tag string
	switch s := m.Status.(type) {
	case network.Pending:
		tag = " (sending)"
	case network.Failed:
		tag = " (failed: " + s.Reason + ")"
	}
	if m.Offline {
		tag += " (offline)"
	}
	return fmt.Sprintf("[%s] [%s]: %s%s", ts, m.SenderID, content, tag)
}

// printEvent renders bus events over the prompt line.
func printEvent(e network.Event) {
	var output string
	switch e.Kind {
	case network.EventMessage:
		if e.Message == nil || e.Message.SenderID == userID {
			return
		}
		output = formatMessage(*e.Message)
	case network.EventOtherConversation:
		if e.Message == nil || e.Message.SenderID == userID {
			return
		}
		output = fmt.Sprintf("[NEW in %s] %s", e.Message.ConversationID, formatMessage(*e.Message))
	case network.EventMessageFailed:
		if e.Message == nil {
			return
		}
		output = fmt.Sprintf("[FAILED %s] %s", e.Message.ClientTempID, e.Message.Content)
	case network.EventTyping:
		output = fmt.Sprintf("[SYSTEM] %s is typing...", peerID)
	case network.EventOnlineStatus:
		if e.Frame.PeerOnline != nil && *e.Frame.PeerOnline {
			output = fmt.Sprintf("[SYSTEM] %s is online (%d connected)", peerID, e.Frame.OnlineCount)
		} else {
			output = fmt.Sprintf("[SYSTEM] %d connected", e.Frame.OnlineCount)
		}
	case network.EventServerError, network.EventAuthRequired:
		output = fmt.Sprintf("[SERVER ERROR]: %s", e.Frame.Content)
	case network.EventConnected:
		output = "[SYSTEM] connected"
	case network.EventDisconnected:
		output = "[SYSTEM] disconnected"
	case network.EventReconnecting:
		output = fmt.Sprintf("[SYSTEM] reconnecting (attempt %d)", e.Attempt)
	default:
		return
	}
	// \r overwrites the prompt before printing and redraws it after.
	fmt.Printf("\r%s\n> ", output)
}
