package models

import "time"

type User struct {
	ChatID    int64     `json:"chat_id"`
	UserName  string    `json:"user_name"`
	CreatedAt time.Time `json:"created_at"`
}
