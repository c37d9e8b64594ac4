package attachments

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps uploads in process memory. Expired uploads are dropped
// on the next write.
type MemoryStore struct {
	policy  Policy
	mu      sync.Mutex
	objects map[string]*memoryObject
	now     func() time.Time
}

func NewMemoryStore(policy Policy) *MemoryStore {
	return &MemoryStore{policy: policy, objects: make(map[string]*memoryObject), now: time.Now}
}

func (m *MemoryStore) Put(ctx context.Context, owner string, kind Kind, filename string, data []byte) (Ref, error) {
	contentType, err := m.policy.Check(kind, data)
	if err != nil {
		return Ref{}, err
	}
	now := m.now()
	ref := Ref{
		Key:         objectKey(owner, kind, filename),
		Kind:        kind,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedAt:  now.UTC(),
	}
	obj := &memoryObject{data: append([]byte(nil), data...)}
	if m.policy.Retention > 0 {
		obj.expires = now.Add(m.policy.Retention)
	}
	m.mu.Lock()
	m.sweep(now)
	m.objects[ref.Key] = obj
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryStore) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	m.mu.Lock()
	obj, ok := m.objects[ref.Key]
	if ok && obj.expired(m.now()) {
		delete(m.objects, ref.Key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.Key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) Release(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	delete(m.objects, ref.Key)
	m.mu.Unlock()
	return nil
}

// Keep stops the upload from expiring.
func (m *MemoryStore) Keep(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[ref.Key]
	if !ok || obj.expired(m.now()) {
		return fmt.Errorf("%w: %s", ErrNotFound, ref.Key)
	}
	obj.expires = time.Time{}
	return nil
}

// Len reports how many live uploads are held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(m.now())
	return len(m.objects)
}

// sweep drops expired uploads. Callers hold mu.
func (m *MemoryStore) sweep(now time.Time) {
	for key, obj := range m.objects {
		if obj.expired(now) {
			delete(m.objects, key)
		}
	}
}

func (o *memoryObject) expired(now time.Time) bool {
	return !o.expires.IsZero() && !now.Before(o.expires)
}
