package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// SettingsStore is a thread-safe in-memory implementation of ports.SettingsStore.
type SettingsStore struct {
	mu       sync.RWMutex
	settings map[string][]byte

	// GetSettingFn allows overriding GetSetting behavior.
	GetSettingFn func(ctx context.Context, key string, target interface{}) error

	// SaveSettingFn allows overriding SaveSetting behavior.
	SaveSettingFn func(ctx context.Context, key string, value interface{}) error
}

// NewSettingsStore creates a new mock settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{
		settings: make(map[string][]byte),
	}
}

// GetSetting retrieves a setting value.
func (s *SettingsStore) GetSetting(ctx context.Context, key string, target interface{}) error {
	if s.GetSettingFn != nil {
		return s.GetSettingFn(ctx, key, target)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.settings[key]
	if !ok {
		return ErrSettingNotFound
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal setting: %w", err)
	}

	return nil
}

// SaveSetting saves a setting value.
func (s *SettingsStore) SaveSetting(ctx context.Context, key string, value interface{}) error {
	if s.SaveSettingFn != nil {
		return s.SaveSettingFn(ctx, key, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal setting: %w", err)
	}

	s.settings[key] = data

	return nil
}

// DeleteSetting deletes a setting.
func (s *SettingsStore) DeleteSetting(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.settings, key)

	return nil
}

// Set is a convenience method for tests to set values directly.
func (s *SettingsStore) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	s.settings[key] = data
}

// Clear removes all settings.
func (s *SettingsStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = make(map[string][]byte)
}
