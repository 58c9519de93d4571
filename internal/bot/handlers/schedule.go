package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/recurrence"
)

var weekdayTokens = map[string]int16{
	"週日": 0, "週一": 1, "週二": 2, "週三": 3, "週四": 4, "週五": 5, "週六": 6,
	"日": 0, "一": 1, "二": 2, "三": 3, "四": 4, "五": 5, "六": 6,
}

func (h *Handlers) handleAddSchedule(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		h.sendMessage(msg.Chat.ID, "用法：/addsched <藥名> <時間> [重複]\n例：/addsched 阿斯匹靈 08:00,20:00 週一,週三")
		return
	}

	med, err := h.medicationByName(ctx, msg.Chat.ID, args[0])
	if err != nil {
		log.Printf("Failed to look up medication: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 讀取藥品失敗")
		return
	}
	if med == nil {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("找不到藥品「%s」，先用 /addmed 新增", args[0]))
		return
	}

	schedule := &models.Schedule{
		MedicationID:  med.MedicationID,
		ChatID:        msg.Chat.ID,
		Kind:          models.KindDaily,
		Times:         strings.Split(args[1], ","),
		StartDate:     time.Now(),
		Active:        true,
		NotifyEnabled: true,
	}

	if len(args) > 2 {
		if err := parseRepeat(schedule, args[2]); err != nil {
			h.sendMessage(msg.Chat.ID, err.Error())
			return
		}
	}

	if err := schedule.Validate(); err != nil {
		h.sendMessage(msg.Chat.ID, "❌ 排程格式不正確："+err.Error())
		return
	}

	if err := h.repos.Schedule.Create(ctx, schedule); err != nil {
		log.Printf("Failed to create schedule: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 新增排程失敗")
		return
	}

	if err := h.proj.ScheduleNotification(ctx, schedule); err != nil {
		log.Printf("Failed to schedule reminders for %s: %v", schedule.ScheduleID, err)
		h.sendMessage(msg.Chat.ID, "⚠️ 排程已建立，但提醒設定失敗："+err.Error())
		return
	}

	h.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ 已為 *%s* 建立排程：%s", med.Name, recurrence.HumanSummary(schedule)))
}

// parseRepeat fills the schedule's kind from a repeat token:
// "週一,週三" for weekdays, "每3天" for day intervals
func parseRepeat(schedule *models.Schedule, token string) error {
	if strings.HasPrefix(token, "每") && strings.HasSuffix(token, "天") {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(token, "每"), "天"))
		if err != nil || n < 1 {
			return fmt.Errorf("間隔天數格式不正確，例：每3天")
		}
		schedule.Kind = models.KindIntervalDays
		schedule.IntervalDays = n
		return nil
	}

	var weekdays []int16
	for _, part := range strings.Split(token, ",") {
		wd, ok := weekdayTokens[strings.TrimSpace(part)]
		if !ok {
			return fmt.Errorf("無法解析重複規則「%s」", token)
		}
		weekdays = append(weekdays, wd)
	}
	schedule.Kind = models.KindSpecificWeekdays
	schedule.Weekdays = weekdays
	return nil
}

func (h *Handlers) handleScheduleList(ctx context.Context, msg *tgbotapi.Message) {
	schedules, err := h.repos.Schedule.GetByChatID(ctx, msg.Chat.ID)
	if err != nil {
		log.Printf("Failed to list schedules: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 讀取排程列表失敗")
		return
	}
	if len(schedules) == 0 {
		h.sendMessage(msg.Chat.ID, "還沒有任何排程，使用 /addsched 新增")
		return
	}

	text := "📅 *排程列表*\n\n"
	for i, s := range schedules {
		med, err := h.repos.Medication.GetByID(ctx, s.MedicationID)
		name := "（未知藥品）"
		if err == nil {
			name = med.Name
		}
		text += fmt.Sprintf("%d. *%s* - %s", i+1, name, recurrence.HumanSummary(s))
		if next := recurrence.NextOccurrence(s, time.Now()); next != nil {
			text += "\n   下次：" + next.Format("01/02 15:04")
		}
		text += "\n"
	}
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleDeleteSchedule(ctx context.Context, msg *tgbotapi.Message) {
	schedule, errText := h.scheduleByIndex(ctx, msg.Chat.ID, msg.CommandArguments())
	if schedule == nil {
		h.sendMessage(msg.Chat.ID, errText)
		return
	}

	// Deleting a schedule always cancels the reminders it owns
	if err := h.proj.CancelNotification(ctx, schedule); err != nil {
		log.Printf("Failed to cancel reminders for schedule %s: %v", schedule.ScheduleID, err)
	}

	if err := h.repos.Schedule.Delete(ctx, schedule.ScheduleID); err != nil {
		log.Printf("Failed to delete schedule: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 刪除排程失敗")
		return
	}
	h.sendMessage(msg.Chat.ID, "🗑 已刪除排程")
}

func (h *Handlers) handleSetScheduleActive(ctx context.Context, msg *tgbotapi.Message, active bool) {
	schedule, errText := h.scheduleByIndex(ctx, msg.Chat.ID, msg.CommandArguments())
	if schedule == nil {
		h.sendMessage(msg.Chat.ID, errText)
		return
	}

	if err := h.repos.Schedule.SetActive(ctx, schedule.ScheduleID, active); err != nil {
		log.Printf("Failed to update schedule: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 更新排程失敗")
		return
	}
	schedule.Active = active

	// Re-project: deactivation cancels, reactivation re-registers
	if err := h.proj.ScheduleNotification(ctx, schedule); err != nil {
		log.Printf("Failed to re-project schedule %s: %v", schedule.ScheduleID, err)
	}

	if active {
		h.sendMessage(msg.Chat.ID, "▶️ 排程已恢復")
	} else {
		h.sendMessage(msg.Chat.ID, "⏸ 排程已暫停，提醒已取消")
	}
}

func (h *Handlers) handleRescheduleAll(ctx context.Context, msg *tgbotapi.Message) {
	schedules, err := h.repos.Schedule.GetActive(ctx)
	if err != nil {
		log.Printf("Failed to load schedules: %v", err)
		h.sendMessage(msg.Chat.ID, "❌ 讀取排程失敗")
		return
	}

	if err := h.proj.RescheduleAll(ctx, schedules); err != nil {
		log.Printf("Reschedule all finished with error: %v", err)
		h.sendMessage(msg.Chat.ID, "⚠️ 提醒重建完成，但部分排程失敗")
		return
	}
	h.sendMessage(msg.Chat.ID, "🔄 所有提醒已重建")
}

func (h *Handlers) scheduleByIndex(ctx context.Context, chatID int64, arg string) (*models.Schedule, string) {
	index, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return nil, "請輸入排程編號，例：/delsched 1"
	}

	schedules, err := h.repos.Schedule.GetByChatID(ctx, chatID)
	if err != nil {
		log.Printf("Failed to list schedules: %v", err)
		return nil, "❌ 讀取排程列表失敗"
	}
	if index < 1 || index > len(schedules) {
		return nil, "找不到這個編號的排程，使用 /schedules 查看"
	}
	return schedules[index-1], ""
}
