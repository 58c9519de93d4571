package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// ScheduleDraft is the structured result of parsing a free-text medication
// description; the user confirms it before anything is saved.
type ScheduleDraft struct {
	MedicationName string   `json:"medication_name"`
	Dosage         string   `json:"dosage"`
	Kind           string   `json:"kind"` // daily | specific_weekdays | interval_days | as_needed
	Times          []string `json:"times"`
	Weekdays       []int    `json:"weekdays"` // 0=Sunday .. 6=Saturday
	IntervalDays   int      `json:"interval_days"`
	Confidence     float64  `json:"confidence"`
	AIMessage      string   `json:"ai_message"`
	RawResponse    string   `json:"-"`
}

const systemPromptTemplate = `你是 DoseLine 的智慧助理，負責將用戶描述的用藥安排解析為結構化的排程。

當前時間: %s

kind 的可能值:
- daily: 每天固定時間服用
- specific_weekdays: 每週特定幾天服用（weekdays 用 0-6，0 是週日）
- interval_days: 每 N 天服用一次（interval_days 填 N）
- as_needed: 需要時才服用，沒有固定時間

規則:
- times 填 24 小時制的 "HH:MM"，例如 ["08:00", "20:00"]
- 「三餐飯後」解析為 ["08:30", "12:30", "18:30"]
- 「睡前」解析為 ["22:00"]
- 無法判斷劑量時 dosage 留空字串
- ai_message 填一句給用戶看的友善確認訊息`

var draftSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"medication_name": {
			"type": "string",
			"description": "Name of the medication"
		},
		"dosage": {
			"type": "string",
			"description": "Dosage text, e.g. '1 錠' or '5ml'"
		},
		"kind": {
			"type": "string",
			"enum": ["daily", "specific_weekdays", "interval_days", "as_needed"],
			"description": "How the schedule repeats"
		},
		"times": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Times of day in HH:MM, empty for as_needed"
		},
		"weekdays": {
			"type": "array",
			"items": {"type": "integer", "minimum": 0, "maximum": 6},
			"description": "Weekday indices for specific_weekdays, 0=Sunday"
		},
		"interval_days": {
			"type": "integer",
			"description": "Day interval for interval_days, otherwise 0"
		},
		"confidence": {
			"type": "number",
			"minimum": 0,
			"maximum": 1,
			"description": "Confidence score between 0 and 1"
		},
		"ai_message": {
			"type": "string",
			"description": "Friendly confirmation message to show the user"
		}
	},
	"required": ["medication_name", "kind", "times", "confidence"],
	"additionalProperties": false
}`)

// ParseSchedule turns a free-text medication description into a schedule draft
func (c *Client) ParseSchedule(ctx context.Context, userMessage string) (*ScheduleDraft, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(systemPromptTemplate, time.Now().Format("2006-01-02 15:04 Monday")),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMessage,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "schedule_draft",
				Schema: draftSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	content := resp.Choices[0].Message.Content
	draft := &ScheduleDraft{RawResponse: content}

	if err := json.Unmarshal([]byte(content), draft); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	return draft, nil
}
