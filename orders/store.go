package orders

import (
	"sort"
	"sync"
)

// Order statuses as shown on the dashboard.
const (
	StatusReceived   = "received"
	StatusInProgress = "in_progress"
	StatusReady      = "ready"
)

// Item is one drink.
type Item struct {
	Flavor    string   `json:"flavor"`
	Toppings  []string `json:"toppings"`
	Sweetness string   `json:"sweetness"`
	Ice       string   `json:"ice"`
	Addons    []string `json:"addons"`
}

// Order is a checkout-created order; Committed is set once finalized.
type Order struct {
	OrderNumber string `json:"order_number"`
	Items       []Item `json:"items"`
	Phone       string `json:"phone,omitempty"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
	Committed   bool   `json:"committed"`
}

// Store keeps committed orders in memory for the life of the process.
// It is reset on boot, matching the dashboard's expectations.
type Store struct {
	mu       sync.Mutex
	byNumber map[string]*Order
}

// NewStore creates an empty order store.
func NewStore() *Store {
	return &Store{byNumber: make(map[string]*Order)}
}

// Add records a committed order, replacing any previous entry with the
// same number.
func (s *Store) Add(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o
	s.byNumber[o.OrderNumber] = &cp
}

// Get returns a committed order by number.
func (s *Store) Get(number string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byNumber[number]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// SetStatus updates an order's status and returns the updated snapshot.
func (s *Store) SetStatus(number, status string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byNumber[number]
	if !ok {
		return Order{}, false
	}
	o.Status = status
	return *o, true
}

// Recent returns up to limit orders, newest first.
func (s *Store) Recent(limit int) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, 0, len(s.byNumber))
	for _, o := range s.byNumber {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// InProgress returns orders that are not yet ready, newest first.
func (s *Store) InProgress() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, 0, len(s.byNumber))
	for _, o := range s.byNumber {
		if o.Status != StatusReady {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// CountActiveDrinksForPhone sums drinks across this phone's orders that
// are not yet ready. Feeds the per-phone checkout limit.
func (s *Store) CountActiveDrinksForPhone(phone string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.byNumber {
		if o.Phone == phone && o.Status != StatusReady {
			n += len(o.Items)
		}
	}
	return n
}

// LatestForPhone returns this phone's newest committed order.
func (s *Store) LatestForPhone(phone string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Order
	for _, o := range s.byNumber {
		if o.Phone != phone {
			continue
		}
		if best == nil || o.CreatedAt > best.CreatedAt {
			best = o
		}
	}
	if best == nil {
		return Order{}, false
	}
	return *best, true
}

// Reset drops all orders.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byNumber = make(map[string]*Order)
}
