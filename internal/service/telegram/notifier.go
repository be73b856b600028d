// Package telegram delivers notification events to a Telegram chat.
package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

// Notifier sends formatted event messages to one chat.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *applogger.Logger
}

func NewNotifier(token string, chatID int64, log *applogger.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID, log: log}, nil
}

// Send formats and delivers one event.
func (n *Notifier) Send(ev models.NotificationEvent) error {
	msg := tgbotapi.NewMessage(n.chatID, FormatEvent(ev))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send %s: %w", ev.Kind, err)
	}
	return nil
}

// FormatEvent renders an event as a Markdown message.
func FormatEvent(ev models.NotificationEvent) string {
	var b strings.Builder

	switch ev.Kind {
	case models.EventSignalAccepted:
		fmt.Fprintf(&b, "*%s %s* signal\n", ev.Symbol, strings.ToUpper(string(ev.Direction)))
		fmt.Fprintf(&b, "entry `%.2f`  sl `%.2f`  tp `%.2f`\n", ev.EntryPrice, ev.StopLoss, ev.TakeProfit)
		fmt.Fprintf(&b, "size `%.2f`  rr `%.2f`", ev.Size, ev.RR)
		if ev.Notes != "" {
			fmt.Fprintf(&b, "\n_%s_", ev.Notes)
		}
	case models.EventAdjustmentApplied:
		fmt.Fprintf(&b, "*%s* trade adjusted\n", ev.Symbol)
		if ev.NewStopLoss != 0 {
			fmt.Fprintf(&b, "sl `%.2f` -> `%.2f`\n", ev.OldStopLoss, ev.NewStopLoss)
		}
		if ev.NewTakeProfit != 0 {
			fmt.Fprintf(&b, "tp `%.2f` -> `%.2f`\n", ev.OldTakeProfit, ev.NewTakeProfit)
		}
		fmt.Fprintf(&b, "_%s_", ev.Reason)
	case models.EventClosedByTp:
		fmt.Fprintf(&b, "*%s* closed at target `%.2f`", ev.Symbol, ev.ClosePrice)
	case models.EventClosedBySl:
		fmt.Fprintf(&b, "*%s* stopped out at `%.2f`", ev.Symbol, ev.ClosePrice)
	case models.EventClosedManual:
		fmt.Fprintf(&b, "*%s* closed at `%.2f`\n_%s_", ev.Symbol, ev.ClosePrice, ev.Reason)
	case models.EventTradeExpired:
		fmt.Fprintf(&b, "*%s* expired at `%.2f`\n_%s_", ev.Symbol, ev.ClosePrice, ev.Reason)
	case models.EventHeartbeat:
		fmt.Fprintf(&b, "scanner alive, %s", ev.Time.Format("2006-01-02 15:04 MST"))
	default:
		fmt.Fprintf(&b, "*%s* %s", ev.Symbol, ev.Kind)
	}
	return b.String()
}
