package chunkstore

import "github.com/braidlog/braid/internal/model"

// Row is the persisted form of one merged entry. Chunks store exactly these
// six fields; everything else on model.LogEntry is an in-memory or raw-log
// concern.
type Row struct {
	TS    int64  `json:"ts"`
	Text  string `json:"text"`
	File  string `json:"file"`
	Path  string `json:"path"`
	Level string `json:"level"`
	Type  string `json:"type"`
}

// RowFromEntry projects a merged entry onto the persisted schema.
func RowFromEntry(e model.LogEntry) Row {
	return Row{
		TS:    e.TS,
		Text:  e.Text,
		File:  e.File,
		Path:  e.Path,
		Level: e.Level,
		Type:  e.Type,
	}
}

// Entry converts a stored row back to a LogEntry. ID and Idx are stamped by
// the reader and pager respectively.
func (r Row) Entry() model.LogEntry {
	return model.LogEntry{
		TS:    r.TS,
		Text:  r.Text,
		File:  r.File,
		Path:  r.Path,
		Level: r.Level,
		Type:  r.Type,
	}
}
