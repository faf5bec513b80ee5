// Package state captures and restores per-route UI state so a page
// looks exactly as the user left it when navigation returns to it.
package state

// ScrollPosition is a document scroll offset.
type ScrollPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PageState is the UI snapshot kept per route: scroll offset, filter
// controls, the search box, expanded sections, persisted form fields
// and any custom values the hosting page attaches. All collection
// fields are always non-nil.
type PageState struct {
	ScrollPosition   ScrollPosition         `json:"scrollPosition"`
	Filters          map[string]interface{} `json:"filters"`
	SearchTerm       string                 `json:"searchTerm"`
	ExpandedSections []string               `json:"expandedSections"`
	FormData         map[string]interface{} `json:"formData"`
	CustomState      map[string]interface{} `json:"customState"`
}

// NewPageState returns an empty snapshot with all collections
// initialized.
func NewPageState() PageState {
	return PageState{
		Filters:          map[string]interface{}{},
		ExpandedSections: []string{},
		FormData:         map[string]interface{}{},
		CustomState:      map[string]interface{}{},
	}
}

// normalized fills in nil collections so stored snapshots are always
// structurally complete.
func (s PageState) normalized() PageState {
	if s.Filters == nil {
		s.Filters = map[string]interface{}{}
	}
	if s.ExpandedSections == nil {
		s.ExpandedSections = []string{}
	}
	if s.FormData == nil {
		s.FormData = map[string]interface{}{}
	}
	if s.CustomState == nil {
		s.CustomState = map[string]interface{}{}
	}
	return s
}

// Clone returns a copy whose collections do not alias the original.
func (s PageState) Clone() PageState {
	cp := s.normalized()
	filters := make(map[string]interface{}, len(cp.Filters))
	for k, v := range cp.Filters {
		filters[k] = v
	}
	cp.Filters = filters
	form := make(map[string]interface{}, len(cp.FormData))
	for k, v := range cp.FormData {
		form[k] = v
	}
	cp.FormData = form
	custom := make(map[string]interface{}, len(cp.CustomState))
	for k, v := range cp.CustomState {
		custom[k] = v
	}
	cp.CustomState = custom
	sections := make([]string, len(cp.ExpandedSections))
	copy(sections, cp.ExpandedSections)
	cp.ExpandedSections = sections
	return cp
}
