package portal

import (
	"fmt"

	"github.com/joeblew999/plat-hazard/internal/api"
	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/humastar"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/query"
	"github.com/joeblew999/plat-hazard/internal/state"
)

// card is the view model of the dataset-card fragment.
type card struct {
	Key      dataset.Key
	Title    string
	Features int
	Range    string
	Visible  bool
	Pending  bool
}

// loadedPanel renders one card per loaded dataset.
func (h *Handler) loadedPanel(sess *state.Session) string {
	var items []any
	for _, k := range sess.LoadedKeys() {
		l, _ := sess.Loaded(k)
		spec, _ := dataset.Lookup(k)
		c := card{
			Key:      k,
			Title:    spec.Title,
			Features: len(l.Collection.Features),
			Visible:  sess.Visible(k),
			Pending:  sess.Pending(k),
		}
		if prop := layers.ColorProperty(k); prop != "" {
			if rng := query.Extent(l.Collection, prop); rng != nil {
				c.Range = fmt.Sprintf("%s %g to %g%s", prop, rng[0], rng[1], unit(l.Units[prop]))
			}
		}
		items = append(items, c)
	}
	return h.RenderList("dataset-card", items, "Nothing loaded", "Choose a dataset and press Load.")
}

func unit(u string) string {
	if u == "" {
		return ""
	}
	return " " + u
}

// mapStyleOptions renders the basemap style choices.
func (h *Handler) mapStyleOptions(sess *state.Session) string {
	current := sess.MapStyle()
	if current == "" {
		current = api.DefaultMapStyle
	}
	opts := make([]humastar.SelectOptionData, 0, len(api.MapStyles))
	for _, s := range api.MapStyles {
		opts = append(opts, humastar.SelectOptionData{Value: s, Label: s, Selected: s == current})
	}
	return h.RenderSelect("Basemap", opts)
}
