package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/DoseLine/internal/models"
)

func (h *Handlers) handleAddMedication(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		h.sendMessage(msg.Chat.ID, "用法：/addmed <名稱> [劑量] [庫存]\n例：/addmed 阿斯匹靈 1錠 30")
		return
	}

	med := &models.Medication{
		ChatID: msg.Chat.ID,
		Name:   args[0],
	}
	if len(args) > 1 {
		med.Dosage = args[1]
	}
	if len(args) > 2 {
		stock, err := strconv.Atoi(args[2])
		if err != nil {
			h.sendMessage(msg.Chat.ID, "庫存必須是數字")
			return
		}
		med.Stock = stock
		med.LowStockThreshold = 5
	}

	if err := h.repos.Medication.Create(ctx, med); err != nil {
		log.Printf("Failed to create medication: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 新增藥品失敗")
		return
	}

	text := fmt.Sprintf("✅ 已新增藥品 *%s*", med.Name)
	if med.Dosage != "" {
		text += "（" + med.Dosage + "）"
	}
	text += "\n接著用 /addsched 設定服藥排程吧"
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleMedicationList(ctx context.Context, msg *tgbotapi.Message) {
	meds, err := h.repos.Medication.GetByChatID(ctx, msg.Chat.ID)
	if err != nil {
		log.Printf("Failed to list medications: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 讀取藥品列表失敗")
		return
	}
	if len(meds) == 0 {
		h.sendMessage(msg.Chat.ID, "還沒有任何藥品，使用 /addmed 新增")
		return
	}

	text := "💊 *藥品列表*\n\n"
	for i, med := range meds {
		text += fmt.Sprintf("%d. *%s*", i+1, med.Name)
		if med.Dosage != "" {
			text += " - " + med.Dosage
		}
		if med.Stock > 0 || med.LowStockThreshold > 0 {
			text += fmt.Sprintf("（剩 %d）", med.Stock)
			if med.IsLowStock() {
				text += " ⚠️ 庫存不足"
			}
		}
		text += "\n"
	}
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleDeleteMedication(ctx context.Context, msg *tgbotapi.Message) {
	med, errText := h.medicationByIndex(ctx, msg.Chat.ID, msg.CommandArguments())
	if med == nil {
		h.sendMessage(msg.Chat.ID, errText)
		return
	}

	// Cancel reminders owned by the medication's schedules before deletion
	schedules, err := h.repos.Schedule.GetByMedicationID(ctx, med.MedicationID)
	if err != nil {
		log.Printf("Failed to load schedules for medication %s: %v", med.MedicationID, err)
		h.sendMessage(msg.Chat.ID, "❌ 刪除藥品失敗")
		return
	}
	for _, s := range schedules {
		if err := h.proj.CancelNotification(ctx, s); err != nil {
			log.Printf("Failed to cancel reminders for schedule %s: %v", s.ScheduleID, err)
		}
	}

	if err := h.repos.Medication.Delete(ctx, med.MedicationID); err != nil {
		log.Printf("Failed to delete medication: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 刪除藥品失敗")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("🗑 已刪除藥品 *%s* 及其排程", med.Name))
}

// medicationByIndex resolves a 1-based list index from /meds into a medication
func (h *Handlers) medicationByIndex(ctx context.Context, chatID int64, arg string) (*models.Medication, string) {
	index, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return nil, "請輸入藥品編號，例：/delmed 1"
	}

	meds, err := h.repos.Medication.GetByChatID(ctx, chatID)
	if err != nil {
		log.Printf("Failed to list medications: %v", err)
		return nil, "❌ 讀取藥品列表失敗"
	}
	if index < 1 || index > len(meds) {
		return nil, "找不到這個編號的藥品，使用 /meds 查看"
	}
	return meds[index-1], ""
}

// medicationByName resolves a medication by exact name match
func (h *Handlers) medicationByName(ctx context.Context, chatID int64, name string) (*models.Medication, error) {
	meds, err := h.repos.Medication.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for _, med := range meds {
		if med.Name == name {
			return med, nil
		}
	}
	return nil, nil
}
