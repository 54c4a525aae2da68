package model

import "encoding/json"

// NamedConfig is a {name, config} pair used for both the model and its optimizer.
type NamedConfig struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config"`
}

// ModelRecord is one training run as stored in the document table.
type ModelRecord struct {
	ID            int64             `json:"id,omitempty"`
	Model         NamedConfig       `json:"model"`
	Optimizer     NamedConfig       `json:"optimizer"`
	TrainingStart int64             `json:"training_start"`
	TrainingEnd   *int64            `json:"training_end"`
	StopSignal    *bool             `json:"stop_signal,omitempty"`
	Description   *string           `json:"description,omitempty"`
	History       []json.RawMessage `json:"history"`
}

type User struct {
	ID           int64
	Name         string
	Username     string
	PasswordHash string
	CreatedAt    int64
}

type AuthToken struct {
	UserID     int64  `json:"userid"`
	Token      string `json:"token"`
	CreatedAt  int64  `json:"created_at"`
	ValidUntil int64  `json:"valid_until"`
}
