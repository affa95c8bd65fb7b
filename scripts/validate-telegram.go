package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-telegram/bot"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/config"
	"github.com/irfndi/transit-flow/internal/notify"
	"github.com/irfndi/transit-flow/internal/pipeline"
	"github.com/irfndi/transit-flow/internal/training"
)

func main() {
	send := flag.Bool("send", false, "send a sample training notification to the chat")
	flag.Parse()

	fmt.Println("🔧 Validating training notification settings...")
	if err := godotenv.Load(); err != nil {
		fmt.Printf("⚠️  Warning: Could not load .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := validate(ctx, cfg.Telegram, *send, os.Stdout); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n🎉 All Telegram notification checks passed!")
}

// validate checks the bot token and chat id against the Telegram API. Extra
// bot options let tests point it at a fake server.
func validate(ctx context.Context, tg config.TelegramConfig, send bool, out io.Writer, opts ...bot.Option) error {
	if tg.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not configured")
	}
	fmt.Fprintf(out, "✅ TELEGRAM_BOT_TOKEN is configured (length: %d)\n", len(tg.BotToken))

	if tg.ChatID == 0 {
		return errors.New("TELEGRAM_CHAT_ID is not configured")
	}
	fmt.Fprintf(out, "✅ TELEGRAM_CHAT_ID is configured: %d\n", tg.ChatID)

	b, err := bot.New(tg.BotToken, append([]bot.Option{bot.WithSkipGetMe()}, opts...)...)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	fmt.Fprintln(out, "🔍 Testing bot API connection...")
	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	fmt.Fprintf(out, "✅ Bot API connection successful!\n")
	fmt.Fprintf(out, "   Bot Name: %s\n", me.FirstName)
	fmt.Fprintf(out, "   Bot Username: @%s\n", me.Username)
	fmt.Fprintf(out, "   Bot ID: %d\n", me.ID)

	if !send {
		return nil
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	notifier, err := notify.NewTelegramNotifier(tg.BotToken, tg.ChatID, logger, append([]bot.Option{bot.WithSkipGetMe()}, opts...)...)
	if err != nil {
		return err
	}
	if err := notifier.NotifyTrained(ctx, sampleOutcome()); err != nil {
		return err
	}
	fmt.Fprintln(out, "✅ Sample notification sent")
	return nil
}

func sampleOutcome() *pipeline.TrainOutcome {
	return &pipeline.TrainOutcome{
		RunID: "validate-telegram",
		Model: &training.TrainedModel{
			Name:      "notification_check",
			TrainedAt: time.Now().UTC(),
		},
		Report: &training.Report{Partition: "test"},
	}
}
