package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/notifier"
)

// ReminderSender delivers fired reminders as Telegram messages with
// take/skip/snooze action buttons. Snooze button offsets come from
// configuration (SNOOZE_MINUTES).
type ReminderSender struct {
	api           *tgbotapi.BotAPI
	snoozeMinutes []int
}

func NewReminderSender(api *tgbotapi.BotAPI, snoozeMinutes []int) *ReminderSender {
	if len(snoozeMinutes) == 0 {
		snoozeMinutes = []int{10, 30}
	}
	return &ReminderSender{api: api, snoozeMinutes: snoozeMinutes}
}

func (s *ReminderSender) SendReminder(ctx context.Context, rem *notifier.Reminder, doseLog *models.DoseLog) error {
	text := "💊 *服藥提醒*\n\n*" + rem.Payload.Title + "*"
	if rem.Payload.Body != "" {
		text += "\n" + rem.Payload.Body
	}
	text += "\n⏰ " + doseLog.ScheduledAt.Format("15:04")
	if doseLog.SnoozeCount > 0 {
		text += fmt.Sprintf("\n💤 已延後 %d 次", doseLog.SnoozeCount)
	}

	var snoozeRow []tgbotapi.InlineKeyboardButton
	for _, minutes := range s.snoozeMinutes {
		snoozeRow = append(snoozeRow, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("💤 延後 %d 分鐘", minutes),
			fmt.Sprintf("dose_snooze:%s:%d", doseLog.LogID, minutes),
		))
	}

	msg := tgbotapi.NewMessage(rem.ChatID, text)
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ 已服用", "dose_take:"+doseLog.LogID.String()),
			tgbotapi.NewInlineKeyboardButtonData("⏭ 跳過", "dose_skip:"+doseLog.LogID.String()),
		),
		tgbotapi.NewInlineKeyboardRow(snoozeRow...),
	)

	_, err := s.api.Send(msg)
	return err
}
