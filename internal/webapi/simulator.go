package webapi

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Poster accepts notifications for later delivery. Implemented by Loop.
type Poster interface {
	Enqueue(n Notification) bool
}

// Fixture is the initial backend state for a Simulator.
type Fixture struct {
	AuthToken string      `yaml:"auth_token"`
	Catalog   []StoreItem `yaml:"catalog"`
	Inventory []UserItem  `yaml:"inventory,omitempty"`

	// Cancel lists product identifiers whose purchase dialog the user closes.
	Cancel []string `yaml:"cancel,omitempty"`
}

// LoadFixture reads a simulator fixture from a YAML file.
// Unknown fields are rejected.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if f.AuthToken == "" {
		return nil, fmt.Errorf("invalid fixture: auth_token is required")
	}
	for i, item := range f.Catalog {
		if item.Identifier == "" {
			return nil, fmt.Errorf("invalid fixture: catalog[%d]: identifier is required", i)
		}
	}

	return &f, nil
}

// Simulator is an in-memory commerce backend implementing API.
//
// Every outbound call is answered by posting notifications, never by
// calling a handler directly, so the caller observes the same decoupled
// request/notification shape as the real web API.
//
// Thread-safety: all methods are safe for concurrent use.
type Simulator struct {
	mu           sync.Mutex
	poster       Poster
	token        string
	status       Status
	catalog      []StoreItem
	inventory    []UserItem
	cancel       map[string]bool
	nextInstance int64
}

// NewSimulator creates a simulator in the Initializing state.
// Call Start to make it ready.
func NewSimulator(poster Poster, f Fixture) *Simulator {
	s := &Simulator{
		poster:    poster,
		token:     f.AuthToken,
		status:    StatusInitializing,
		catalog:   slices.Clone(f.Catalog),
		inventory: slices.Clone(f.Inventory),
		cancel:    make(map[string]bool, len(f.Cancel)),
	}
	for _, id := range f.Cancel {
		s.cancel[id] = true
	}
	for _, item := range s.inventory {
		s.nextInstance = max(s.nextInstance, item.ID)
	}
	return s
}

// Start marks the API ready and posts BecameReady.
func (s *Simulator) Start() {
	s.mu.Lock()
	s.status = StatusReady
	s.mu.Unlock()

	s.poster.Enqueue(BecameReady())
}

// MarkUnavailable simulates a platform where the API cannot load.
func (s *Simulator) MarkUnavailable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusUnavailable
}

// SetCancel controls whether purchases of identifier are cancelled by the user.
func (s *Simulator) SetCancel(identifier string, cancel bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel[identifier] = cancel
}

// Inventory returns a copy of the user's owned items.
func (s *Simulator) Inventory() []UserItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.inventory)
}

// RequestItemList posts the store catalog.
func (s *Simulator) RequestItemList() {
	s.mu.Lock()
	items := slices.Clone(s.catalog)
	s.mu.Unlock()

	s.poster.Enqueue(StoreItemsReceived(items))
}

// RequestUserItemList posts the user's inventory.
func (s *Simulator) RequestUserItemList() {
	s.mu.Lock()
	items := slices.Clone(s.inventory)
	s.mu.Unlock()

	s.poster.Enqueue(UserItemsReceived(items))
}

// PurchaseItems grants one new instance per identifier and posts
// PurchaseSucceeded, or posts PurchaseFailed if any identifier is unknown
// or marked for cancellation.
func (s *Simulator) PurchaseItems(identifiers []string) {
	ids := slices.Clone(identifiers)

	s.mu.Lock()
	for _, id := range ids {
		if s.cancel[id] || !s.inCatalog(id) {
			s.mu.Unlock()
			s.poster.Enqueue(PurchaseFailed(ids...))
			return
		}
	}
	for _, id := range ids {
		s.nextInstance++
		s.inventory = append(s.inventory, UserItem{ID: s.nextInstance, Identifier: id})
	}
	s.mu.Unlock()

	s.poster.Enqueue(PurchaseSucceeded(ids...))
}

// GameAuthToken returns the fixture's auth token.
func (s *Simulator) GameAuthToken() string {
	return s.token
}

// Status returns the simulated API status.
func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// inCatalog reports whether identifier is sold. Caller holds s.mu.
func (s *Simulator) inCatalog(identifier string) bool {
	for _, item := range s.catalog {
		if item.Identifier == identifier {
			return true
		}
	}
	return false
}
