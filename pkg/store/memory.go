package store

import "sync"

// Memory is an in-process CredentialStore. It does not survive restarts and
// is intended for tests and development.
type Memory struct {
	mu      sync.RWMutex
	records map[string]CredentialRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]CredentialRecord)}
}

func (m *Memory) Get(userID string) (*CredentialRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (m *Memory) Put(record *CredentialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.UserID] = *record
	return nil
}

func (m *Memory) Delete(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}
