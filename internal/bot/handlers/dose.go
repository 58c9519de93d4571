package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/hray3182/DoseLine/internal/models"
)

var statusIcons = map[models.DoseStatus]string{
	models.StatusPending: "⏳",
	models.StatusTaken:   "✅",
	models.StatusSkipped: "⏭",
	models.StatusDelayed: "🕐",
	models.StatusSnoozed: "💤",
}

func (h *Handlers) handleDoseList(ctx context.Context, msg *tgbotapi.Message) {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	// Materialize first so the list reflects today's full plan
	if _, err := h.mat.MaterializeDay(ctx, now); err != nil {
		log.Printf("Failed to materialize today: %v", err)
	}

	logs, err := h.repos.DoseLog.GetByChatAndDateRange(ctx, msg.Chat.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		log.Printf("Failed to list dose logs: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 讀取服藥記錄失敗")
		return
	}
	if len(logs) == 0 {
		h.sendMessage(msg.Chat.ID, "今天沒有排定的服藥")
		return
	}

	text := "📋 *今日服藥*\n\n"
	for _, doseLog := range logs {
		med, err := h.repos.Medication.GetByID(ctx, doseLog.MedicationID)
		name := "（未知藥品）"
		if err == nil {
			name = med.Name
		}
		text += fmt.Sprintf("%s %s *%s*", statusIcons[doseLog.Status], doseLog.ScheduledAt.Format("15:04"), name)
		if doseLog.Status == models.StatusSnoozed && doseLog.NextFireAt != nil {
			text += "（延後至 " + doseLog.NextFireAt.Format("15:04") + "）"
		}
		text += "\n"
	}
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) doseLogFromCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, rawID string) *models.DoseLog {
	logID, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}

	doseLog, err := h.repos.DoseLog.GetByID(ctx, logID)
	if err != nil {
		log.Printf("Failed to load dose log %s: %v", logID, err)
		return nil
	}
	if doseLog.ChatID != callback.Message.Chat.ID {
		h.answerCallbackWithAlert(callback.ID, "這不是你的服藥記錄")
		return nil
	}
	return doseLog
}

func (h *Handlers) handleDoseTaken(ctx context.Context, callback *tgbotapi.CallbackQuery, rawID string) {
	doseLog := h.doseLogFromCallback(ctx, callback, rawID)
	if doseLog == nil {
		return
	}

	stock, err := h.doses.MarkTaken(ctx, doseLog, time.Now())
	if err != nil {
		log.Printf("Failed to mark dose taken: %v", err)
		h.answerCallbackWithAlert(callback.ID, "記錄失敗，請再試一次")
		return
	}
	h.proj.CancelDoseReminder(doseLog)

	med, err := h.repos.Medication.GetByID(ctx, doseLog.MedicationID)
	text := "✅ 已服用"
	if err == nil {
		text += " *" + med.Name + "*"
	}
	if doseLog.Status == models.StatusDelayed {
		text += "（超過 30 分鐘，記為延遲服用）"
	}
	if err == nil && med.LowStockThreshold > 0 && stock <= med.LowStockThreshold {
		text += fmt.Sprintf("\n⚠️ 庫存只剩 %d，記得補充", stock)
	}
	h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID, text)
}

func (h *Handlers) handleDoseSkipped(ctx context.Context, callback *tgbotapi.CallbackQuery, rawID string) {
	doseLog := h.doseLogFromCallback(ctx, callback, rawID)
	if doseLog == nil {
		return
	}

	if err := h.doses.MarkSkipped(ctx, doseLog, ""); err != nil {
		log.Printf("Failed to mark dose skipped: %v", err)
		h.answerCallbackWithAlert(callback.ID, "記錄失敗，請再試一次")
		return
	}
	h.proj.CancelDoseReminder(doseLog)

	h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID, "⏭ 已跳過這次服藥")
}

func (h *Handlers) handleDoseSnoozed(ctx context.Context, callback *tgbotapi.CallbackQuery, rawID, rawMinutes string) {
	doseLog := h.doseLogFromCallback(ctx, callback, rawID)
	if doseLog == nil {
		return
	}

	minutes, err := strconv.Atoi(rawMinutes)
	if err != nil || minutes < 1 {
		return
	}

	if err := h.proj.SnoozeNotification(ctx, doseLog, minutes); err != nil {
		log.Printf("Failed to snooze dose %s: %v", doseLog.LogID, err)
		h.answerCallbackWithAlert(callback.ID, "延後失敗，請再試一次")
		return
	}

	h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID,
		fmt.Sprintf("💤 已延後 %d 分鐘，到時再提醒你", minutes))
}
