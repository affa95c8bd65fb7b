// Package notify reports finished training runs to a Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/pipeline"
)

// ReportPlaces is the precision of metrics in notifications
const ReportPlaces = 2

// ErrNotConfigured is returned when no bot token or chat id is set
var ErrNotConfigured = errors.New("telegram notifier not configured")

// TelegramNotifier sends a summary of every trained model to one chat
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Entry
}

// NewTelegramNotifier creates a notifier. Extra bot options are passed to
// bot.New, which lets tests point it at a fake API server.
func NewTelegramNotifier(token string, chatID int64, logger *logrus.Logger, opts ...bot.Option) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot:    b,
		chatID: chatID,
		logger: logger.WithField("component", "telegram_notifier"),
	}, nil
}

// NotifyTrained sends the training summary
func (n *TelegramNotifier) NotifyTrained(ctx context.Context, outcome *pipeline.TrainOutcome) error {
	if outcome == nil || outcome.Model == nil {
		return nil
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      FormatTrainedMessage(outcome),
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	n.logger.WithFields(logrus.Fields{
		"model":  outcome.Model.Name,
		"run_id": outcome.RunID,
	}).Debug("Training notification sent")
	return nil
}

// FormatTrainedMessage renders a training outcome as Telegram markdown
func FormatTrainedMessage(outcome *pipeline.TrainOutcome) string {
	var sb strings.Builder
	model := outcome.Model

	fmt.Fprintf(&sb, "🚇 *Model trained:* `%s`\n\n", model.Name)
	fmt.Fprintf(&sb, "Run: `%s`\n", outcome.RunID)
	fmt.Fprintf(&sb, "Records: %d (dropped %d)\n", outcome.Records, outcome.Gaps)
	fmt.Fprintf(&sb, "Training rows: %d\n", model.TrainingRows)

	if outcome.Report != nil {
		r := outcome.Report.Rounded(ReportPlaces)
		fmt.Fprintf(&sb, "\n📊 *Evaluation (%s, %d rows)*\n", r.Partition, r.Rows)
		fmt.Fprintf(&sb, "MAE: %s\n", r.MAE)
		if outcome.Report.MAPERows == 0 {
			sb.WriteString("MAPE: n/a\n")
		} else {
			fmt.Fprintf(&sb, "MAPE: %s%%\n", r.MAPE)
		}
		fmt.Fprintf(&sb, "R²: %s\n", r.R2)
	}

	if outcome.Tuning != nil {
		fmt.Fprintf(&sb, "\n🎛 Tuned over %d parameters\n", len(outcome.Tuning.Steps))
	}

	if imp := model.Importance(); len(imp) > 0 {
		top := imp
		if len(top) > 3 {
			top = top[:3]
		}
		names := make([]string, len(top))
		for i, f := range top {
			names[i] = "`" + f.Column + "`"
		}
		fmt.Fprintf(&sb, "\nTop features: %s", strings.Join(names, ", "))
	}
	return sb.String()
}
