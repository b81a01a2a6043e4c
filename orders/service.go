package orders

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	defaultSweetness = "50%"
	defaultIce       = "regular ice"
	stencilAddon     = "matcha stencil on top"
	creamTopping     = "vanilla cream"
)

// Service owns per-call carts and pending (checked-out but not yet
// committed) orders, and commits into the shared Store on finalize.
// Tool results are loose JSON maps; the agent contract is {ok, ...}.
type Service struct {
	store *Store

	mu      sync.Mutex
	carts   map[string][]Item
	pending map[string]map[string]*Order // callSID -> orderNumber -> order
}

// NewService creates a Service committing into store.
func NewService(store *Store) *Service {
	return &Service{
		store:   store,
		carts:   make(map[string][]Item),
		pending: make(map[string]map[string]*Order),
	}
}

// Store returns the committed-order store.
func (s *Service) Store() *Store {
	return s.store
}

func fail(format string, args ...any) map[string]any {
	return map[string]any{"ok": false, "error": fmt.Sprintf(format, args...)}
}

func resolveToppings(in []string) ([]string, map[string]any) {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = normalize(t)
		if t == "" {
			continue
		}
		m := matchWithAliases(t, Toppings, toppingAliases)
		if m == "" {
			return nil, fail("Topping '%s' not available.", t)
		}
		out = append(out, m)
	}
	return out, nil
}

func resolveAddons(in []string) ([]string, map[string]any) {
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = normalize(a)
		if a == "" {
			continue
		}
		m := matchWithAliases(a, Addons, addonAliases)
		if m == "" {
			return nil, fail("Add-on '%s' not available.", a)
		}
		out = append(out, m)
	}
	return out, nil
}

func stencilNeedsCream(toppings, addons []string) map[string]any {
	hasStencil := false
	for _, a := range addons {
		if a == stencilAddon {
			hasStencil = true
		}
	}
	if !hasStencil {
		return nil
	}
	for _, t := range toppings {
		if t == creamTopping {
			return nil
		}
	}
	return map[string]any{
		"ok":       false,
		"error":    "Matcha stencil is only available with foam. Please add Vanilla Cream topping.",
		"requires": map[string]any{"topping": creamTopping},
	}
}

// AddToCart validates and appends one drink to the call's cart.
func (s *Service) AddToCart(callSID, flavor string, toppings []string, sweetness, ice string, addons []string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[callSID]
	if len(cart) >= MaxDrinksPerOrder {
		return fail("Max %d drinks per order.", MaxDrinksPerOrder)
	}

	f := normalize(flavor)
	if !contains(Flavors, f) {
		return fail("'%s' is not on the menu.", flavor)
	}

	tops, errRes := resolveToppings(toppings)
	if errRes != nil {
		return errRes
	}
	adds, errRes := resolveAddons(addons)
	if errRes != nil {
		return errRes
	}
	if errRes := stencilNeedsCream(tops, adds); errRes != nil {
		return errRes
	}

	if sweetness == "" {
		sweetness = defaultSweetness
	}
	if ice == "" {
		ice = defaultIce
	}

	item := Item{Flavor: f, Toppings: tops, Sweetness: sweetness, Ice: ice, Addons: adds}
	s.carts[callSID] = append(cart, item)
	return map[string]any{"ok": true, "cart_count": len(s.carts[callSID]), "item": item}
}

// RemoveFromCart removes the drink at index (0-based).
func (s *Service) RemoveFromCart(callSID string, index int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[callSID]
	if index < 0 || index >= len(cart) {
		return map[string]any{"ok": false, "error": "Index out of range.", "cart_count": len(cart)}
	}
	removed := cart[index]
	s.carts[callSID] = append(cart[:index], cart[index+1:]...)
	return map[string]any{"ok": true, "removed": removed, "cart_count": len(s.carts[callSID])}
}

// ItemUpdate carries the fields ModifyCartItem may change. Nil slices
// leave the existing value; empty strings leave sweetness/ice.
type ItemUpdate struct {
	Flavor    string
	Toppings  []string
	Sweetness string
	Ice       string
	Addons    []string
}

// ModifyCartItem edits an existing drink in place.
func (s *Service) ModifyCartItem(callSID string, index int, upd ItemUpdate) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[callSID]
	if index < 0 || index >= len(cart) {
		return map[string]any{"ok": false, "error": "Index out of range.", "cart_count": len(cart)}
	}
	item := &cart[index]

	if upd.Flavor != "" {
		f := normalize(upd.Flavor)
		if !contains(Flavors, f) {
			return fail("'%s' is not on the menu.", upd.Flavor)
		}
		item.Flavor = f
	}
	if upd.Toppings != nil {
		tops, errRes := resolveToppings(upd.Toppings)
		if errRes != nil {
			return errRes
		}
		item.Toppings = tops
	}
	if upd.Addons != nil {
		adds, errRes := resolveAddons(upd.Addons)
		if errRes != nil {
			return errRes
		}
		item.Addons = adds
	}
	if errRes := stencilNeedsCream(item.Toppings, item.Addons); errRes != nil {
		return errRes
	}
	if upd.Sweetness != "" {
		item.Sweetness = upd.Sweetness
	}
	if upd.Ice != "" {
		item.Ice = upd.Ice
	}

	return map[string]any{"ok": true, "item": *item, "cart_count": len(cart)}
}

// SetSweetnessIce updates sweetness/ice on the indexed drink, or the
// last drink when index is negative.
func (s *Service) SetSweetnessIce(callSID string, index int, sweetness, ice string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[callSID]
	if len(cart) == 0 {
		return fail("Cart is empty.")
	}
	if index < 0 {
		index = len(cart) - 1
	}
	if index >= len(cart) {
		return fail("Index out of range.")
	}
	if sweetness != "" {
		cart[index].Sweetness = sweetness
	}
	if ice != "" {
		cart[index].Ice = ice
	}
	return map[string]any{"ok": true, "item": cart[index]}
}

// GetCart returns a copy of the call's cart.
func (s *Service) GetCart(callSID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[callSID]
	items := make([]Item, len(cart))
	copy(items, cart)
	return map[string]any{"ok": true, "items": items, "count": len(items)}
}

func randomOrderNumber() string {
	return fmt.Sprintf("%04d", rand.Intn(10000))
}

// Checkout turns the cart into a pending order and assigns the order
// number. existingNumber pins a previously assigned number: a repeat
// checkout within the same call returns the identical number with the
// cart's current contents, never a fresh one.
func (s *Service) Checkout(callSID, phone, existingNumber string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[callSID]
	if len(cart) == 0 {
		return fail("Cart is empty.")
	}
	phoneNorm := NormalizePhone(phone)

	if phoneNorm != "" {
		active := s.store.CountActiveDrinksForPhone(phoneNorm)
		if active+len(cart) > MaxActiveDrinksPerPhone {
			return map[string]any{
				"ok": false,
				"error": fmt.Sprintf(
					"You currently have %d active drink(s). Adding %d more would exceed the limit of %d active drinks per phone number. Please wait for your current orders to be ready.",
					active, len(cart), MaxActiveDrinksPerPhone),
				"limit_reached": true,
				"active_drinks": active,
				"cart_drinks":   len(cart),
				"max_allowed":   MaxActiveDrinksPerPhone,
			}
		}
	}

	pending := s.pending[callSID]
	if pending == nil {
		pending = make(map[string]*Order)
		s.pending[callSID] = pending
	}

	if existingNumber != "" {
		if o, ok := pending[existingNumber]; ok {
			o.Items = snapshotItems(cart)
			if phoneNorm != "" {
				o.Phone = phoneNorm
			}
			return checkoutResult(o)
		}
	}

	o := &Order{
		OrderNumber: randomOrderNumber(),
		Items:       snapshotItems(cart),
		Phone:       phoneNorm,
		Status:      StatusReceived,
		CreatedAt:   time.Now().Unix(),
	}
	pending[o.OrderNumber] = o
	return checkoutResult(o)
}

// Finalize commits a pending order: items move into the durable store
// and the cart is cleared. Returns the committed snapshot.
func (s *Service) Finalize(callSID, orderNumber string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pending[callSID]
	o, ok := pending[orderNumber]
	if !ok {
		return fail("Pending order not found.")
	}
	delete(pending, orderNumber)

	if cart := s.carts[callSID]; len(cart) > 0 {
		o.Items = snapshotItems(cart)
	}
	o.Committed = true
	s.store.Add(*o)
	s.carts[callSID] = nil

	return checkoutResult(o)
}

// DiscardPending drops a pending order and the cart behind it.
func (s *Service) DiscardPending(callSID, orderNumber string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pending[callSID]
	if _, ok := pending[orderNumber]; !ok {
		return fail("Pending order not found.")
	}
	delete(pending, orderNumber)
	s.carts[callSID] = nil
	return map[string]any{"ok": true, "discarded": true}
}

// OrderStatus looks up a committed order by number, falling back to the
// phone's newest order.
func (s *Service) OrderStatus(phone, orderNumber string) map[string]any {
	if orderNumber != "" {
		if o, ok := s.store.Get(orderNumber); ok {
			return map[string]any{"found": true, "order_number": o.OrderNumber, "status": o.Status}
		}
	}
	if p := NormalizePhone(phone); p != "" {
		if o, ok := s.store.LatestForPhone(p); ok {
			return map[string]any{"found": true, "order_number": o.OrderNumber, "status": o.Status}
		}
	}
	return map[string]any{"found": false}
}

// ClearCall drops all per-call state once the call ends.
func (s *Service) ClearCall(callSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, callSID)
	delete(s.pending, callSID)
}

func checkoutResult(o *Order) map[string]any {
	res := map[string]any{
		"ok":           true,
		"order_number": o.OrderNumber,
		"items":        snapshotItems(o.Items),
		"status":       o.Status,
		"created_at":   o.CreatedAt,
		"committed":    o.Committed,
	}
	if o.Phone != "" {
		res["phone"] = o.Phone
	} else {
		res["phone"] = nil
	}
	return res
}

func snapshotItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
