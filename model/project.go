package model

import "time"

const SYSTEM_OWNER = "system"

type Project struct {
	Id        string         `json:"id"`
	Name      string         `json:"name"`
	OwnerId   string         `json:"owner_id"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}
