package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/DoseLine/internal/ai"
	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/recurrence"
)

type pendingDraft struct {
	Draft     *ai.ScheduleDraft
	ExpiresAt time.Time
}

var (
	pendingDrafts = make(map[int64]*pendingDraft)
	pendingMutex  sync.RWMutex
)

const draftTTL = 5 * time.Minute

func (h *Handlers) handleAIMessage(ctx context.Context, msg *tgbotapi.Message) {
	if h.ai == nil {
		h.sendMessage(msg.Chat.ID, "自然語言功能未啟用，請使用 /help 查看指令")
		return
	}

	draft, err := h.ai.ParseSchedule(ctx, msg.Text)
	if err != nil {
		log.Printf("Failed to parse schedule from text: %v", err)
		h.sendMessage(msg.Chat.ID, "我看不懂這段描述，試試 /help 裡的指令格式？")
		return
	}
	if draft.MedicationName == "" || draft.Confidence < 0.5 {
		h.sendMessage(msg.Chat.ID, "我不太確定你的意思，可以換個說法，或使用 /addsched 指令")
		return
	}

	pendingMutex.Lock()
	pendingDrafts[msg.Chat.ID] = &pendingDraft{
		Draft:     draft,
		ExpiresAt: time.Now().Add(draftTTL),
	}
	pendingMutex.Unlock()

	text := draft.AIMessage
	if text == "" {
		text = "幫你整理如下，確認後就會建立排程："
	}
	text += "\n\n💊 *" + draft.MedicationName + "*"
	if draft.Dosage != "" {
		text += " - " + draft.Dosage
	}
	text += "\n📅 " + describeDraft(draft)

	confirm := tgbotapi.NewMessage(msg.Chat.ID, text)
	confirm.ParseMode = "Markdown"
	confirm.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ 確認", fmt.Sprintf("draft_confirm:%d", msg.Chat.ID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ 取消", fmt.Sprintf("draft_cancel:%d", msg.Chat.ID)),
		),
	)
	if _, err := h.api.Send(confirm); err != nil {
		log.Printf("Failed to send draft confirmation: %v", err)
	}
}

func (h *Handlers) takePendingDraft(chatID int64) *ai.ScheduleDraft {
	pendingMutex.Lock()
	defer pendingMutex.Unlock()

	pending, exists := pendingDrafts[chatID]
	if !exists {
		return nil
	}
	delete(pendingDrafts, chatID)
	if time.Now().After(pending.ExpiresAt) {
		return nil
	}
	return pending.Draft
}

func (h *Handlers) handleDraftConfirm(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	draft := h.takePendingDraft(chatID)
	if draft == nil {
		h.editMessageText(chatID, callback.Message.MessageID, "⏰ 確認已過期，請重新描述一次")
		return
	}

	med, err := h.medicationByName(ctx, chatID, draft.MedicationName)
	if err != nil {
		log.Printf("Failed to look up medication: %v", err)
		h.editMessageText(chatID, callback.Message.MessageID, "❌ 建立失敗，請再試一次")
		return
	}
	if med == nil {
		med = &models.Medication{
			ChatID: chatID,
			Name:   draft.MedicationName,
			Dosage: draft.Dosage,
		}
		if err := h.repos.Medication.Create(ctx, med); err != nil {
			log.Printf("Failed to create medication: %v", err)
			h.editMessageText(chatID, callback.Message.MessageID, "❌ 建立失敗，請再試一次")
			return
		}
	}

	schedule := &models.Schedule{
		MedicationID:  med.MedicationID,
		ChatID:        chatID,
		Kind:          models.ScheduleKind(draft.Kind),
		Times:         draft.Times,
		IntervalDays:  draft.IntervalDays,
		StartDate:     time.Now(),
		Active:        true,
		NotifyEnabled: true,
	}
	for _, wd := range draft.Weekdays {
		schedule.Weekdays = append(schedule.Weekdays, int16(wd))
	}

	if err := schedule.Validate(); err != nil {
		h.editMessageText(chatID, callback.Message.MessageID, "❌ 解析出的排程不完整："+err.Error())
		return
	}
	if err := h.repos.Schedule.Create(ctx, schedule); err != nil {
		log.Printf("Failed to create schedule: %v", err)
		h.editMessageText(chatID, callback.Message.MessageID, "❌ 建立失敗，請再試一次")
		return
	}

	if err := h.proj.ScheduleNotification(ctx, schedule); err != nil {
		log.Printf("Failed to schedule reminders for %s: %v", schedule.ScheduleID, err)
		h.editMessageText(chatID, callback.Message.MessageID, "⚠️ 排程已建立，但提醒設定失敗")
		return
	}

	h.editMessageText(chatID, callback.Message.MessageID,
		fmt.Sprintf("✅ 已建立 *%s* 的排程：%s", med.Name, recurrence.HumanSummary(schedule)))
}

func (h *Handlers) handleDraftCancel(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	h.takePendingDraft(chatID)
	h.editMessageText(chatID, callback.Message.MessageID, "❌ 已取消")
}

func describeDraft(draft *ai.ScheduleDraft) string {
	switch draft.Kind {
	case "daily":
		return "每天 " + strings.Join(draft.Times, "、")
	case "specific_weekdays":
		names := [7]string{"日", "一", "二", "三", "四", "五", "六"}
		var days []string
		for _, wd := range draft.Weekdays {
			if wd >= 0 && wd <= 6 {
				days = append(days, "週"+names[wd])
			}
		}
		return strings.Join(days, "、") + " " + strings.Join(draft.Times, "、")
	case "interval_days":
		return fmt.Sprintf("每 %d 天 %s", draft.IntervalDays, strings.Join(draft.Times, "、"))
	case "as_needed":
		return "需要時服用"
	default:
		return strings.Join(draft.Times, "、")
	}
}
