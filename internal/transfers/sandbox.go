package transfers

import (
	"context"
	"sync"
)

// SandboxCreator fabricates transfer ids without calling a provider. It is used
// in development when no provider key is configured. Calls with the same
// idempotency key return the same id.
type SandboxCreator struct {
	mu     sync.Mutex
	issued map[string]string
}

func NewSandboxCreator() *SandboxCreator {
	return &SandboxCreator{issued: map[string]string{}}
}

func (s *SandboxCreator) CreateTransfer(_ context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.issued[req.IdempotencyKey]; ok {
		return id, nil
	}
	id := "tr_sandbox_" + req.IdempotencyKey
	s.issued[req.IdempotencyKey] = id
	return id, nil
}
