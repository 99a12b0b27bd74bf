package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by LoadSettings when nothing has been persisted yet.
	ErrNotFound = errors.New("settings not found")
	ErrClosed   = errors.New("store closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": settings JSON at Path + <prefix>.alerts.jsonl next to it
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Settings is the persisted bot settings record. It is always written whole.
//
// The JSON shape ({"threshold":0,"chat_id":null}) is also the file format,
// so an existing config.json from older deployments loads as-is.
type Settings struct {
	Threshold int    `json:"threshold"`
	ChatID    *int64 `json:"chat_id"`
}

// AlertRecord is one notification attempt. Error is empty on success.
type AlertRecord struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	ChatID   int64     `json:"chat_id"`
	Row      int       `json:"row"`
	Product  string    `json:"product"`
	Quantity int       `json:"quantity"`
	Customer string    `json:"customer"`
	Error    string    `json:"error,omitempty"`
}
