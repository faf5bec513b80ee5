package state

// Selectors configure how a surface finds the controls to snapshot.
// The patterns are interpreted by the surface implementation (CSS
// selectors for a DOM surface, accessibility ids for a native one).
type Selectors struct {
	Filters  string `yaml:"filters"`
	Search   string `yaml:"search"`
	Expanded string `yaml:"expanded"`
	Forms    string `yaml:"forms"`
}

// DefaultSelectors returns the conventional data-attribute patterns.
func DefaultSelectors() Selectors {
	return Selectors{
		Filters:  "[data-filter]",
		Search:   "[data-search]",
		Expanded: "[data-expanded]",
		Forms:    "form[data-persist]",
	}
}

// Surface is the rendering-environment capability the manager talks
// to. Implementations exist per target environment; the manager itself
// stays environment-agnostic.
//
// Restore must apply the snapshot in this fixed order: filters,
// expanded sections, form data, search term, and scroll position last
// (deferred until layout has settled), dispatching whatever change
// notifications the environment needs to react.
type Surface interface {
	Capture(sel Selectors) (PageState, error)
	Restore(st PageState) error
}

// NoopSurface is the headless surface: captures empty snapshots and
// restores nothing. Used on servers and in tests that only exercise
// the store.
type NoopSurface struct{}

func (NoopSurface) Capture(Selectors) (PageState, error) { return NewPageState(), nil }
func (NoopSurface) Restore(PageState) error              { return nil }
