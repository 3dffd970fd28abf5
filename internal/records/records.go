// Package records stores patient documents encrypted at rest. The memory
// implementation backs development and tests.
package records

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhealth/patient-portal/internal/cryptoutil"
	"github.com/meridianhealth/patient-portal/internal/validate"
	"github.com/meridianhealth/patient-portal/internal/xerrors"
)

var ErrNotFound = xerrors.New("records: record not found")

// Record describes a stored document. Contents are never held here in the
// clear.
type Record struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id"`
	Filename   string    `json:"filename"`
	Size       int       `json:"size"`
	SHA256     string    `json:"sha256"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Store is the record storage surface the HTTP layer depends on.
type Store interface {
	Save(ctx context.Context, patientID, filename string, content []byte) (Record, error)
	List(ctx context.Context, patientID string) ([]Record, error)
	Open(ctx context.Context, patientID, recordID string) (Record, []byte, error)
}

// Memory encrypts every document with the portal data key before holding
// it, so a heap dump or accidental serialization leaks ciphertext only.
type Memory struct {
	key []byte

	mu        sync.RWMutex
	meta      map[string]Record
	encrypted map[string]cryptoutil.EncryptedPayload
}

func NewMemory(key []byte) (*Memory, error) {
	if len(key) != cryptoutil.KeySize {
		return nil, cryptoutil.ErrInvalidKey
	}
	return &Memory{
		key:       key,
		meta:      make(map[string]Record),
		encrypted: make(map[string]cryptoutil.EncryptedPayload),
	}, nil
}

func (m *Memory) Save(ctx context.Context, patientID, filename string, content []byte) (Record, error) {
	enc, err := cryptoutil.Encrypt(content, m.key)
	if err != nil {
		return Record{}, xerrors.Wrap(err, "encrypt record")
	}

	rec := Record{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		Filename:   validate.SanitizeFilename(filename),
		Size:       len(content),
		SHA256:     cryptoutil.SHA256Hex(content),
		UploadedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.meta[rec.ID] = rec
	m.encrypted[rec.ID] = enc
	m.mu.Unlock()
	return rec, nil
}

func (m *Memory) List(ctx context.Context, patientID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, rec := range m.meta {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) Open(ctx context.Context, patientID, recordID string) (Record, []byte, error) {
	m.mu.RLock()
	rec, ok := m.meta[recordID]
	enc := m.encrypted[recordID]
	m.mu.RUnlock()

	if !ok || rec.PatientID != patientID {
		return Record{}, nil, ErrNotFound
	}

	content, err := cryptoutil.Decrypt(enc, m.key)
	if err != nil {
		return Record{}, nil, xerrors.Wrap(err, "decrypt record")
	}
	return rec, content, nil
}
