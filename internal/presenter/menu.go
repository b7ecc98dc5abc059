package presenter

import "pricewidget/internal/provider"

// Menu item actions understood by the display surface.
const (
	ActionSelectProvider = "select_provider"
	ActionCustomCoin     = "custom_coin"
	ActionRefresh        = "refresh"
	ActionQuit           = "quit"
)

type MenuItem struct {
	Label   string     `json:"label"`
	Action  string     `json:"action,omitempty"`
	Value   string     `json:"value,omitempty"`
	Radio   bool       `json:"radio,omitempty"`
	Checked bool       `json:"checked,omitempty"`
	Enabled bool       `json:"enabled"`
	Submenu []MenuItem `json:"submenu,omitempty"`
}

type Menu struct {
	Header string     `json:"header"`
	Items  []MenuItem `json:"items"`
}

// BuildMenu lists one radio item per provider in registration order.
// Platform items such as auto start are appended by the surface itself.
func BuildMenu(reg *provider.Registry, activeID string, dm DisplayModel) Menu {
	providers := make([]MenuItem, 0, reg.Len())
	for _, p := range reg.All() {
		providers = append(providers, MenuItem{
			Label:   p.Name(),
			Action:  ActionSelectProvider,
			Value:   p.ID(),
			Radio:   true,
			Checked: p.ID() == activeID,
			Enabled: true,
		})
	}
	return Menu{
		Header: dm.Title,
		Items: []MenuItem{
			{Label: "Exchange", Enabled: true, Submenu: providers},
			{Label: "Custom coin…", Action: ActionCustomCoin, Enabled: true},
			{Label: "Refresh", Action: ActionRefresh, Enabled: true},
			{Label: "Quit", Action: ActionQuit, Enabled: true},
		},
	}
}
