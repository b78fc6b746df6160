package plugin

// Component is one node of a form tree rendered by the host UI.
type Component struct {
	Component string         `json:"component"`
	Props     map[string]any `json:"props,omitempty"`
	Content   []Component    `json:"content,omitempty"`
}

// SelectItem is an option of a VSelect.
type SelectItem struct {
	Title string `json:"title"`
	Value any    `json:"value"`
}

func Form(rows ...Component) Component {
	return Component{Component: "VForm", Content: rows}
}

func Row(cols ...Component) Component {
	return Component{Component: "VRow", Content: cols}
}

// Col wraps children in a column. md <= 0 makes the column full width on
// every breakpoint.
func Col(md int, children ...Component) Component {
	props := map[string]any{"cols": 12}
	if md > 0 {
		props["md"] = md
	}
	return Component{Component: "VCol", Props: props, Content: children}
}

func Switch(model, label string) Component {
	return Component{
		Component: "VSwitch",
		Props:     map[string]any{"model": model, "label": label},
	}
}

func TextField(model, label, placeholder string) Component {
	props := map[string]any{"model": model, "label": label}
	if placeholder != "" {
		props["placeholder"] = placeholder
	}
	return Component{Component: "VTextField", Props: props}
}

// Select builds a VSelect. Multiple selects render chips and are clearable.
func Select(model, label string, items []SelectItem, multiple bool) Component {
	if items == nil {
		items = []SelectItem{}
	}
	props := map[string]any{"model": model, "label": label, "items": items}
	if multiple {
		props["multiple"] = true
		props["chips"] = true
		props["clearable"] = true
	}
	return Component{Component: "VSelect", Props: props}
}

func InfoAlert(text string) Component {
	return Component{
		Component: "VAlert",
		Props:     map[string]any{"type": "info", "variant": "tonal", "text": text},
	}
}

// Models returns every model name bound in the tree, in document order.
func Models(tree []Component) []string {
	var models []string
	var walk func(c Component)
	walk = func(c Component) {
		if m, ok := c.Props["model"].(string); ok && m != "" {
			models = append(models, m)
		}
		for _, child := range c.Content {
			walk(child)
		}
	}
	for _, c := range tree {
		walk(c)
	}
	return models
}
