package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fitsbook-server/internal/model"
)

// ModelStore is the document store for training runs.
type ModelStore struct {
	engine *Engine
}

func NewModelStore(engine *Engine) *ModelStore {
	return &ModelStore{engine: engine}
}

// Insert persists rec and returns its new id. rec.ID is ignored.
func (s *ModelStore) Insert(ctx context.Context, rec model.ModelRecord) (int64, error) {
	rec.ID = 0
	if rec.History == nil {
		rec.History = []json.RawMessage{}
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encoding model record: %w", err)
	}
	return s.engine.Insert(ctx, doc)
}

func (s *ModelStore) Get(ctx context.Context, id int64) (model.ModelRecord, error) {
	doc, err := s.engine.Get(ctx, id)
	if err != nil {
		return model.ModelRecord{}, err
	}
	var rec model.ModelRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return model.ModelRecord{}, storageErr("decode", err)
	}
	return rec, nil
}

// GetJSON returns the stored document as-is, including keys that are not
// part of ModelRecord.
func (s *ModelStore) GetJSON(ctx context.Context, id int64) (json.RawMessage, error) {
	doc, err := s.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(doc), nil
}

func (s *ModelStore) List(ctx context.Context, limit, offset int) ([]model.ModelRecord, error) {
	docs, err := s.engine.Scan(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	result := make([]model.ModelRecord, 0, len(docs))
	for _, doc := range docs {
		var rec model.ModelRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, storageErr("decode", err)
		}
		result = append(result, rec)
	}
	return result, nil
}

func (s *ModelStore) ListJSON(ctx context.Context, limit, offset int) ([]json.RawMessage, error) {
	docs, err := s.engine.Scan(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	result := make([]json.RawMessage, 0, len(docs))
	for _, doc := range docs {
		result = append(result, json.RawMessage(doc))
	}
	return result, nil
}

// Patch merges partial into the stored document (JSON merge patch).
func (s *ModelStore) Patch(ctx context.Context, id int64, partial map[string]any) error {
	patch, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}
	return s.engine.Patch(ctx, id, patch)
}

// AppendHistory pushes event onto the record's history.
func (s *ModelStore) AppendHistory(ctx context.Context, id int64, event json.RawMessage) error {
	if !json.Valid(event) {
		return fmt.Errorf("history event is not valid JSON")
	}
	return s.engine.Append(ctx, id, "history", event)
}

func (s *ModelStore) History(ctx context.Context, id int64) ([]json.RawMessage, error) {
	raw, err := s.engine.Extract(ctx, id, "history")
	if err != nil {
		return nil, err
	}
	history := make([]json.RawMessage, 0)
	if raw == nil || string(raw) == "null" {
		return history, nil
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, ErrNotArray
	}
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, storageErr("decode", err)
	}
	if history == nil {
		history = make([]json.RawMessage, 0)
	}
	return history, nil
}

func (s *ModelStore) Delete(ctx context.Context, id int64) error {
	return s.engine.Delete(ctx, id)
}

// Attribute returns a single field selected by path, or nil if unset.
func (s *ModelStore) Attribute(ctx context.Context, id int64, path string) (json.RawMessage, error) {
	return s.engine.Extract(ctx, id, path)
}

func (s *ModelStore) SetDescription(ctx context.Context, id int64, description string) error {
	return s.Patch(ctx, id, map[string]any{"description": description})
}

// EndTraining stamps training_end.
func (s *ModelStore) EndTraining(ctx context.Context, id int64, at time.Time) error {
	return s.Patch(ctx, id, map[string]any{"training_end": at.UnixMilli()})
}

// StopTraining raises the stop flag and stamps training_end.
func (s *ModelStore) StopTraining(ctx context.Context, id int64, at time.Time) error {
	return s.Patch(ctx, id, map[string]any{
		"stop_signal":  true,
		"training_end": at.UnixMilli(),
	})
}

// StopSignal reports whether a stop was requested. A missing or non-boolean
// flag reads as false.
func (s *ModelStore) StopSignal(ctx context.Context, id int64) (bool, error) {
	raw, err := s.Attribute(ctx, id, "stop_signal")
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, storageErr("decode", err)
	}
	return truthy(v), nil
}

// truthy mirrors how a loosely typed client would read the flag.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

// IsNotFound is a small helper for handlers.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
