package tools

import (
	"context"
	"fmt"

	servizio "github.com/dfordp/Servizio"
	"github.com/dfordp/Servizio/agentwire"
	"github.com/dfordp/Servizio/events"
	"github.com/dfordp/Servizio/orders"
	"github.com/dfordp/Servizio/session"
)

// Deps are the collaborators the tool handlers act on.
type Deps struct {
	Sessions *session.Store
	Orders   *orders.Service
	Events   *events.Hub
}

func defByName(name string) agentwire.FunctionDef {
	for _, fd := range agentwire.FunctionDefs {
		if fd.Name == name {
			return fd
		}
	}
	panic("unknown tool definition: " + name)
}

// Registry binds every tool in the agent schema to its handler.
func Registry(d Deps) []Tool {
	return []Tool{
		{defByName("menu_summary"), func(ctx context.Context, a Args) (any, error) {
			return orders.MenuSummary(), nil
		}},

		{defByName("add_to_cart"), func(ctx context.Context, a Args) (any, error) {
			toppings, _ := a.StringSlice("toppings")
			addons, _ := a.StringSlice("addons")
			return d.Orders.AddToCart(a.CallSID(), a.String("flavor"), toppings,
				a.String("sweetness"), a.String("ice"), addons), nil
		}},

		{defByName("remove_from_cart"), func(ctx context.Context, a Args) (any, error) {
			idx, ok := a.Int("index")
			if !ok {
				return nil, fmt.Errorf("index is required")
			}
			return d.Orders.RemoveFromCart(a.CallSID(), idx), nil
		}},

		{defByName("modify_cart_item"), func(ctx context.Context, a Args) (any, error) {
			idx, ok := a.Int("index")
			if !ok {
				return nil, fmt.Errorf("index is required")
			}
			upd := orders.ItemUpdate{
				Flavor:    a.String("flavor"),
				Sweetness: a.String("sweetness"),
				Ice:       a.String("ice"),
			}
			if tops, present := a.StringSlice("toppings"); present {
				if tops == nil {
					tops = []string{}
				}
				upd.Toppings = tops
			}
			if adds, present := a.StringSlice("addons"); present {
				if adds == nil {
					adds = []string{}
				}
				upd.Addons = adds
			}
			return d.Orders.ModifyCartItem(a.CallSID(), idx, upd), nil
		}},

		{defByName("set_sweetness_ice"), func(ctx context.Context, a Args) (any, error) {
			idx, ok := a.Int("index")
			if !ok {
				idx = -1
			}
			return d.Orders.SetSweetnessIce(a.CallSID(), idx, a.String("sweetness"), a.String("ice")), nil
		}},

		{defByName("get_cart"), func(ctx context.Context, a Args) (any, error) {
			return d.Orders.GetCart(a.CallSID()), nil
		}},

		{defByName("order_is_placed"), func(ctx context.Context, a Args) (any, error) {
			s := d.Sessions.GetOrCreate(a.CallSID())
			s.Mu.Lock()
			defer s.Mu.Unlock()
			res := map[string]any{"placed": s.OrderNumber != ""}
			if s.OrderNumber != "" {
				res["order_number"] = s.OrderNumber
			} else {
				res["order_number"] = nil
			}
			return res, nil
		}},

		{defByName("checkout_order"), checkoutHandler(d)},

		{defByName("order_status"), func(ctx context.Context, a Args) (any, error) {
			return d.Orders.OrderStatus(a.String("phone"), a.String("order_number")), nil
		}},

		{defByName("extract_phone_and_order"), func(ctx context.Context, a Args) (any, error) {
			phone, number := orders.ExtractPhoneAndOrder(a.String("text"))
			res := map[string]any{"phone": nil, "order_number": nil}
			if phone != "" {
				res["phone"] = phone
			}
			if number != "" {
				res["order_number"] = number
			}
			return res, nil
		}},

		{defByName("save_phone_number"), func(ctx context.Context, a Args) (any, error) {
			s := d.Sessions.GetOrCreate(a.CallSID())
			p := orders.NormalizePhone(a.String("phone"))

			s.Mu.Lock()
			s.Phone = p
			// An explicit confirm_phone_number call is always required.
			s.PhoneConfirmed = false
			s.Mu.Unlock()

			res := map[string]any{"ok": p != ""}
			if p != "" {
				res["phone"] = p
			} else {
				res["phone"] = nil
			}
			return res, nil
		}},

		{defByName("confirm_phone_number"), func(ctx context.Context, a Args) (any, error) {
			s := d.Sessions.GetOrCreate(a.CallSID())

			s.Mu.Lock()
			s.PhoneConfirmed = a.Bool("confirmed") && s.Phone != ""
			confirmed, phone := s.PhoneConfirmed, s.Phone
			s.Mu.Unlock()

			res := map[string]any{"ok": confirmed}
			if phone != "" {
				res["phone"] = phone
			} else {
				res["phone"] = nil
			}
			return res, nil
		}},

		{defByName("confirm_pending_to_cart"), func(ctx context.Context, a Args) (any, error) {
			return map[string]any{"ok": true, "staged": false}, nil
		}},

		{defByName("clear_pending_item"), func(ctx context.Context, a Args) (any, error) {
			return map[string]any{"ok": true, "cleared": true}, nil
		}},
	}
}

// checkoutHandler wraps orders.Checkout with the session side effects:
// the order number is pinned to the session on first success (and never
// replaced), and dashboards get an advisory order_locked event.
func checkoutHandler(d Deps) Handler {
	return func(ctx context.Context, a Args) (any, error) {
		callSID := a.CallSID()
		s := d.Sessions.GetOrCreate(callSID)

		s.Mu.Lock()
		existing := s.OrderNumber
		s.Mu.Unlock()

		res := d.Orders.Checkout(callSID, a.String("phone"), existing)
		if res["ok"] != true {
			return res, nil
		}

		number, _ := res["order_number"].(string)
		phone, _ := res["phone"].(string)

		s.Mu.Lock()
		if phone != "" {
			// Not auto-confirmed; confirm_phone_number decides that.
			s.Phone = phone
		}
		locked := false
		if s.OrderNumber == "" && number != "" {
			s.OrderNumber = number
			locked = true
		}
		s.Mu.Unlock()

		if locked && d.Events != nil {
			d.Events.Publish(servizio.EventTopicOrders, events.Event{
				"type":         servizio.EventOrderLocked,
				"order_number": number,
				"call_sid":     callSID,
			})
		}
		return res, nil
	}
}
