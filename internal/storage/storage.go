package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
)

var (
	// ErrInvalidParameters indicates the provided parameters violate validation rules.
	ErrInvalidParameters = errors.New("invalid optimization parameters")
)

// ParameterStore holds the parameters currently configured on the dashboard.
type ParameterStore interface {
	GetParameters() (optimizer.Parameters, error)
	SetParameters(params optimizer.Parameters) error
}

// MemoryParameterStore keeps parameters in-memory and guards access with a RWMutex.
type MemoryParameterStore struct {
	mu     sync.RWMutex
	params optimizer.Parameters
}

// NewMemoryParameterStore initialises storage with the default parameters.
func NewMemoryParameterStore() *MemoryParameterStore {
	return &MemoryParameterStore{
		params: optimizer.DefaultParameters(),
	}
}

// GetParameters returns a deep copy of the current parameters.
func (s *MemoryParameterStore) GetParameters() (optimizer.Parameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.params.Clone(), nil
}

// SetParameters validates and stores a copy of params.
func (s *MemoryParameterStore) SetParameters(params optimizer.Parameters) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}

	s.mu.Lock()
	s.params = params.Clone()
	s.mu.Unlock()

	return nil
}
