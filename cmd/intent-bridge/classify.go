package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/usecase"
	"github.com/chopstar001/chat-intent-bridge/internal/conf"
)

type classifyFlags struct {
	chatID      string
	userID      string
	progressive bool
}

func (c *cli) newClassifyCmd() *cobra.Command {
	var flags classifyFlags
	cmd := &cobra.Command{
		Use:   "classify [message]",
		Short: "Classify one message and print the result as JSON",
		Long:  "Classify one message and print the result as JSON. The message is read from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := messageText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runClassify(cmd.Context(), c.cfg, flags, text, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.chatID, "chat", "cli", "Chat ID for transcript history and conversation signals")
	cmd.Flags().StringVar(&flags.userID, "user", "", "Author of the message")
	cmd.Flags().BoolVar(&flags.progressive, "fast", false, "Settle obvious non-questions locally before calling the model")
	return cmd
}

func messageText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no message given")
	}
	return text, nil
}

func runClassify(ctx context.Context, cfg *conf.Config, flags classifyFlags, text string, out io.Writer) error {
	app, err := newCore(cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	history, err := app.repos.History.GetChatHistory(ctx, flags.chatID, cfg.HistoryFetch())
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	req := usecase.ClassifyRequest{Text: text, ChatID: flags.chatID, UserID: flags.userID}
	if len(history) > 0 {
		req.History = history
	}

	var result domain.ClassificationResult
	if flags.progressive {
		result = app.intent.ClassifyProgressively(ctx, req)
	} else {
		result = app.intent.Classify(ctx, req)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
