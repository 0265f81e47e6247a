package options

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Name identifies a runtime tunable.
type Name string

const (
	// PositionLimit caps the absolute position before the market maker unwinds.
	PositionLimit Name = "position_limit"
	// OrderQuantity sizes passive market-making quotes.
	OrderQuantity Name = "order_quantity"
)

const (
	DefaultPositionLimit = 100
	DefaultOrderQuantity = 50
)

// ErrInvalidOption is returned when a name is not a declared tunable.
var ErrInvalidOption = errors.New("invalid option")

// Defaults returns the declared tunables with their startup values.
func Defaults() map[Name]float64 {
	return map[Name]float64{
		PositionLimit: DefaultPositionLimit,
		OrderQuantity: DefaultOrderQuantity,
	}
}

// Store is a fixed registry of named numeric tunables. The set of names is
// decided at construction; Set never inserts.
type Store struct {
	mu     sync.RWMutex
	values map[Name]float64
}

// NewStore declares every name in defaults with its initial value.
func NewStore(defaults map[Name]float64) *Store {
	values := make(map[Name]float64, len(defaults))
	for name, v := range defaults {
		values[name] = v
	}
	return &Store{values: values}
}

// Get returns the value for name and whether name is declared.
func (s *Store) Get(name Name) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set overwrites a declared tunable. Unknown names leave the store untouched.
func (s *Store) Set(name Name, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidOption, name)
	}
	s.values[name] = value
	return nil
}

// Has reports whether name is declared.
func (s *Store) Has(name Name) bool {
	_, ok := s.Get(name)
	return ok
}

// Snapshot copies the current values keyed by plain strings.
func (s *Store) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.values))
	for name, v := range s.values {
		out[string(name)] = v
	}
	return out
}

// Names lists the declared tunables in sorted order.
func (s *Store) Names() []Name {
	s.mu.RLock()
	names := make([]Name, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
