package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JacobMintzer/Allstar-API/internal/crypto"
	"github.com/JacobMintzer/Allstar-API/internal/model"
)

// MemoryAccounts is an in-memory Accounts implementation with the same
// semantics as the Postgres one, used by tests.
type MemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]model.Account)}
}

func (s *MemoryAccounts) Create(_ context.Context, account model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.Email]; ok {
		return ErrDuplicateAccount
	}
	s.accounts[account.Email] = account
	return nil
}

func (s *MemoryAccounts) Get(_ context.Context, email string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[email]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return account, nil
}

func (s *MemoryAccounts) VerifyCredentials(ctx context.Context, email, passwordHash string) (model.Account, error) {
	account, err := s.Get(ctx, email)
	if err != nil {
		return model.Account{}, ErrAuthenticationFailed
	}
	if !crypto.CheckHash(account.PasswordHash, passwordHash) {
		return model.Account{}, ErrAuthenticationFailed
	}
	return account, nil
}

func (s *MemoryAccounts) List(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]model.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Email < accounts[j].Email })
	return accounts, nil
}

type MemoryRecords struct {
	mu      sync.RWMutex
	records map[string]model.TimeRecord
}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{records: make(map[string]model.TimeRecord)}
}

func (s *MemoryRecords) Create(_ context.Context, record model.TimeRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = uuid.NewString()
	s.records[record.ID] = record
	return record.ID, nil
}

func (s *MemoryRecords) Get(_ context.Context, id string) (model.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return model.TimeRecord{}, ErrNotFound
	}
	return record, nil
}

func (s *MemoryRecords) Update(_ context.Context, id string, update RecordUpdate) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return "", ErrNotFound
	}
	applyUpdate(&record, update)
	s.records[id] = record
	return id, nil
}

func (s *MemoryRecords) AppendNote(_ context.Context, id, note string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return "", ErrNotFound
	}
	record.Notes = record.Notes + " " + note
	s.records[id] = record
	return id, nil
}

func (s *MemoryRecords) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *MemoryRecords) List(_ context.Context) ([]model.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]model.TimeRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records, nil
}

func (s *MemoryRecords) SearchNotes(_ context.Context, term string) ([]model.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(term)
	records := make([]model.TimeRecord, 0)
	for _, record := range s.records {
		if strings.Contains(strings.ToLower(record.Notes), needle) {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *MemoryRecords) OverlapRange(_ context.Context, start, end time.Time) ([]model.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]model.TimeRecord, 0)
	for _, record := range s.records {
		if record.StartTime == nil || record.FinishTime == nil {
			continue
		}
		if record.StartTime.Before(end) && record.FinishTime.After(start) {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *MemoryRecords) SumSecondsByOwner(_ context.Context, email string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, record := range s.records {
		if record.OwnerEmail == email {
			total += record.TotalTime
		}
	}
	return total, nil
}
