package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dermashop/dermashop-backend/internal/products"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/google/uuid"
)

// memStore mimics the redis store: every read returns a decoded copy.
type memStore struct {
	mu      sync.Mutex
	carts   map[uuid.UUID][]byte
	ttls    map[uuid.UUID]time.Duration
	saves   int
	deletes int
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{carts: map[uuid.UUID][]byte{}, ttls: map[uuid.UUID]time.Duration{}}
}

func (s *memStore) Get(_ context.Context, userID uuid.UUID) (*Cart, error) {
	s.mu.Lock()
	raw, ok := s.carts[userID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *memStore) Save(_ context.Context, userID uuid.UUID, c *Cart, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.carts[userID] = raw
	s.ttls[userID] = ttl
	s.saves++
	return nil
}

func (s *memStore) Delete(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	delete(s.ttls, userID)
	s.deletes++
	return nil
}

func (s *memStore) has(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.carts[userID]
	return ok
}

type stubCatalog struct {
	mu      sync.Mutex
	entries map[uuid.UUID]products.CatalogEntry
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{entries: map[uuid.UUID]products.CatalogEntry{}}
}

func (c *stubCatalog) put(entry products.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.ProductID] = entry
}

func (c *stubCatalog) FindOne(_ context.Context, productID uuid.UUID) (*products.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[productID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &entry, nil
}

type inventoryCall struct {
	productID uuid.UUID
	qty       int
}

type stubInventory struct {
	mu         sync.Mutex
	stock      map[uuid.UUID]int
	reserves   []inventoryCall
	releases   []inventoryCall
	releaseErr map[uuid.UUID]error
}

func newStubInventory() *stubInventory {
	return &stubInventory{stock: map[uuid.UUID]int{}, releaseErr: map[uuid.UUID]error{}}
}

func (i *stubInventory) Reserve(_ context.Context, productID uuid.UUID, qty int) (products.ReservationResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	available := i.stock[productID]
	if available < qty {
		return products.ReservationResult{Success: false, Reason: products.ReasonInsufficientStock, Available: available}, nil
	}
	i.stock[productID] = available - qty
	i.reserves = append(i.reserves, inventoryCall{productID: productID, qty: qty})
	return products.ReservationResult{Success: true}, nil
}

func (i *stubInventory) Release(_ context.Context, productID uuid.UUID, qty int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.releaseErr[productID]; err != nil {
		return err
	}
	i.stock[productID] += qty
	i.releases = append(i.releases, inventoryCall{productID: productID, qty: qty})
	return nil
}

func (i *stubInventory) reserveCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.reserves)
}

// keyedLocker is an in-process Locker used to show the serialised mode.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: map[uuid.UUID]*sync.Mutex{}}
}

func (l *keyedLocker) Lock(_ context.Context, userID uuid.UUID) (func(context.Context) error, error) {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return func(context.Context) error {
		m.Unlock()
		return nil
	}, nil
}

var errReleaseDown = errors.New("inventory unavailable")
