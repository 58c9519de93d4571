package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/DoseLine/internal/ai"
	"github.com/hray3182/DoseLine/internal/dose"
	"github.com/hray3182/DoseLine/internal/materializer"
	"github.com/hray3182/DoseLine/internal/notifier"
	"github.com/hray3182/DoseLine/internal/projector"
	"github.com/hray3182/DoseLine/internal/repository"
)

type Repositories struct {
	User       *repository.UserRepository
	Medication *repository.MedicationRepository
	Schedule   *repository.ScheduleRepository
	DoseLog    *repository.DoseLogRepository
}

type Handlers struct {
	api   *tgbotapi.BotAPI
	repos *Repositories
	doses *dose.Service
	proj  *projector.Projector
	mat   *materializer.Materializer
	store *notifier.Store
	ai    *ai.Client
}

func New(
	api *tgbotapi.BotAPI,
	repos *Repositories,
	doses *dose.Service,
	proj *projector.Projector,
	mat *materializer.Materializer,
	store *notifier.Store,
	aiClient *ai.Client,
) *Handlers {
	return &Handlers{
		api:   api,
		repos: repos,
		doses: doses,
		proj:  proj,
		mat:   mat,
		store: store,
		ai:    aiClient,
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	// Ensure user exists and reminders are authorized for this chat
	if _, err := h.repos.User.GetOrCreate(ctx, msg.Chat.ID, msg.From.UserName); err != nil {
		log.Printf("Failed to get/create user: %v", err)
		return
	}
	h.store.Authorize(msg.Chat.ID)

	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "meds":
		h.handleMedicationList(ctx, msg)
	case "addmed":
		h.handleAddMedication(ctx, msg)
	case "delmed":
		h.handleDeleteMedication(ctx, msg)
	case "schedules":
		h.handleScheduleList(ctx, msg)
	case "addsched":
		h.handleAddSchedule(ctx, msg)
	case "delsched":
		h.handleDeleteSchedule(ctx, msg)
	case "pause":
		h.handleSetScheduleActive(ctx, msg, false)
	case "resume":
		h.handleSetScheduleActive(ctx, msg, true)
	case "doses":
		h.handleDoseList(ctx, msg)
	case "reschedule":
		h.handleRescheduleAll(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "未知指令，請使用 /help 查看可用指令")
	}
}

func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := h.repos.User.GetOrCreate(ctx, msg.Chat.ID, msg.From.UserName); err != nil {
		log.Printf("Failed to get/create user: %v", err)
		return
	}
	h.store.Authorize(msg.Chat.ID)

	h.handleAIMessage(ctx, msg)
}

func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// Telegram omits Message for callbacks on sufficiently old messages;
	// every action below needs the originating chat, so there is nothing to do
	if callback.Message == nil {
		return
	}

	// Answer callback to remove loading state
	answer := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(answer); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}

	parts := strings.Split(callback.Data, ":")
	if len(parts) < 2 {
		return
	}

	switch parts[0] {
	case "dose_take":
		h.handleDoseTaken(ctx, callback, parts[1])
	case "dose_skip":
		h.handleDoseSkipped(ctx, callback, parts[1])
	case "dose_snooze":
		if len(parts) != 3 {
			return
		}
		h.handleDoseSnoozed(ctx, callback, parts[1], parts[2])
	case "draft_confirm":
		h.handleDraftConfirm(ctx, callback)
	case "draft_cancel":
		h.handleDraftCancel(ctx, callback)
	}
}

func (h *Handlers) answerCallbackWithAlert(callbackID string, text string) {
	answer := tgbotapi.NewCallbackWithAlert(callbackID, text)
	if _, err := h.api.Request(answer); err != nil {
		log.Printf("Failed to answer callback with alert: %v", err)
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = "Markdown"
	if _, err := h.api.Send(edit); err != nil {
		log.Printf("Failed to edit message: %v", err)
	}
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
}

func (h *Handlers) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	text := fmt.Sprintf(`👋 你好 %s！

我是 DoseLine，你的用藥提醒助理。

我可以幫你：
💊 管理藥品與庫存
📅 設定服藥排程
⏰ 按時提醒你服藥
📋 記錄每次服藥狀況

你可以直接用自然語言告訴我，例如：
• "阿斯匹靈每天早晚飯後一錠"
• "維他命 D 每週一三五早上吃"

使用 /help 查看所有指令`, msg.From.FirstName)
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := `📖 *指令列表*

*藥品*
/addmed <名稱> [劑量] [庫存] - 新增藥品
/meds - 查看藥品列表
/delmed <編號> - 刪除藥品

*排程*
/addsched <藥名> <時間> [重複] - 新增排程
  例：/addsched 阿斯匹靈 08:00,20:00
  例：/addsched 阿斯匹靈 08:00 週一,週三,週五
  例：/addsched 阿斯匹靈 08:00 每3天
/schedules - 查看排程列表
/pause <編號> - 暫停排程
/resume <編號> - 恢復排程
/delsched <編號> - 刪除排程

*服藥記錄*
/doses - 查看今日服藥狀況
/reschedule - 重建所有提醒

💡 你也可以直接用自然語言描述用藥安排！`
	h.sendMessage(msg.Chat.ID, text)
}
