// Package alert описывает запросы на академические оповещения.
// Ядро решает только, нужно ли оповещение и какое; хранение и доставка — снаружи.
package alert

import (
	"context"
	"time"
)

// Level — важность оповещения.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Type — категория оповещения.
type Type string

const (
	TypeLowGPA       Type = "LOW_GPA"
	TypeGPADrop      Type = "GPA_DROP"
	TypeStatusChange Type = "STATUS_CHANGE"
	TypeProbation    Type = "PROBATION"
	TypeImprovement  Type = "IMPROVEMENT"
)

// Request — запрос к коллаборатору оповещений.
type Request struct {
	StudentID string `json:"student_id"`
	Level     Level  `json:"level"`
	Type      Type   `json:"type"`
	Message   string `json:"message"`
}

// Alert — сохранённое оповещение.
type Alert struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Level     Level     `json:"level"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Requester принимает запросы на оповещения.
type Requester interface {
	Request(ctx context.Context, req Request) (*Alert, error)
}

// Repository хранит оповещения.
type Repository interface {
	Save(ctx context.Context, a *Alert) error
	ListByStudent(ctx context.Context, studentID string, limit int) ([]*Alert, error)
}
