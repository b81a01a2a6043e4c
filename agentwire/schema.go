package agentwire

// FunctionDef describes one tool to the agent. The schema is a
// contract the agent relies on verbatim; parameter names and types
// must not change without a protocol version bump.
type FunctionDef struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Parameters  ObjectSchema `json:"parameters"`
}

// ObjectSchema is a JSON-schema object type.
type ObjectSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property is one JSON-schema parameter.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Minimum     *int      `json:"minimum,omitempty"`
}

func obj(props map[string]Property, required ...string) ObjectSchema {
	if props == nil {
		props = map[string]Property{}
	}
	if required == nil {
		required = []string{}
	}
	return ObjectSchema{Type: "object", Properties: props, Required: required}
}

func str(desc string) Property {
	return Property{Type: "string", Description: desc}
}

func strArray() Property {
	return Property{Type: "array", Items: &Property{Type: "string"}}
}

func index() Property {
	zero := 0
	return Property{Type: "integer", Minimum: &zero}
}

// FunctionDefs is the fixed tool schema exposed to the agent.
var FunctionDefs = []FunctionDef{
	{
		Name:        "menu_summary",
		Description: "Give a short human-style menu overview (flavors, toppings, add-ons).",
		Parameters:  obj(nil),
	},

	// Cart ops
	{
		Name:        "add_to_cart",
		Description: "Add a drink to the cart (standard size).",
		Parameters: obj(map[string]Property{
			"flavor":    str(""),
			"toppings":  strArray(),
			"sweetness": str("0% | 25% | 50% | 75% | 100%"),
			"ice":       str("no ice | less ice | regular ice | extra ice"),
			"addons":    strArray(),
		}, "flavor"),
	},
	{
		Name:        "remove_from_cart",
		Description: "Remove a drink by index (0-based).",
		Parameters:  obj(map[string]Property{"index": index()}, "index"),
	},
	{
		Name:        "modify_cart_item",
		Description: "Modify an existing drink in the cart by index.",
		Parameters: obj(map[string]Property{
			"index":     index(),
			"flavor":    str(""),
			"toppings":  strArray(),
			"sweetness": str(""),
			"ice":       str(""),
			"addons":    strArray(),
		}, "index"),
	},
	{
		Name:        "set_sweetness_ice",
		Description: "Update sweetness and/or ice for last item or by index.",
		Parameters: obj(map[string]Property{
			"index":     index(),
			"sweetness": str(""),
			"ice":       str(""),
		}),
	},
	{
		Name:        "get_cart",
		Description: "Get current cart contents to read back to customer.",
		Parameters:  obj(nil),
	},

	// Session helpers (compat)
	{
		Name:        "order_is_placed",
		Description: "Return whether an order number has been generated in this call session.",
		Parameters:  obj(nil),
	},

	// Checkout / status
	{
		Name:        "checkout_order",
		Description: "Generate order number but don't finalize yet. Can be called once per order flow.",
		Parameters:  obj(map[string]Property{"phone": str("")}),
	},
	{
		Name:        "order_status",
		Description: "Look up order status by phone or order number.",
		Parameters: obj(map[string]Property{
			"phone":        str(""),
			"order_number": str(""),
		}),
	},
	{
		Name:        "extract_phone_and_order",
		Description: "Extract phone and 4-digit order number from free text.",
		Parameters:  obj(map[string]Property{"text": str("")}, "text"),
	},

	// Phone capture + confirmation
	{
		Name:        "save_phone_number",
		Description: "Save the customer's phone number for pickup (not confirmed).",
		Parameters:  obj(map[string]Property{"phone": str("")}, "phone"),
	},
	{
		Name:        "confirm_phone_number",
		Description: "Confirm (true) or reject (false) the previously provided phone number.",
		Parameters:  obj(map[string]Property{"confirmed": {Type: "boolean"}}, "confirmed"),
	},

	// Back-compat stubs (no staging in this build)
	{Name: "confirm_pending_to_cart", Description: "No-op in this build.", Parameters: obj(nil)},
	{Name: "clear_pending_item", Description: "No-op in this build.", Parameters: obj(nil)},
}
