package domain

// ContextSummary describes which facet roles a session's tenant can act in and
// which one is currently active.
type ContextSummary struct {
	HasClientContext     bool          `json:"has_client_context"`
	HasVendorContext     bool          `json:"has_vendor_context"`
	HasDualContext       bool          `json:"has_dual_context"`
	ClientCounterparties int           `json:"client_counterparties"`
	VendorCounterparties int           `json:"vendor_counterparties"`
	Active               ActiveContext `json:"active_context"`
	// SelectionRequired is set when the tenant is dual-context and no role has
	// been chosen yet. Context-scoped routes must not proceed in that state.
	SelectionRequired bool `json:"selection_required"`
}

// Has reports whether the tenant holds the given role.
func (s ContextSummary) Has(role FacetRole) bool {
	switch role {
	case FacetClient:
		return s.HasClientContext
	case FacetVendor:
		return s.HasVendorContext
	}
	return false
}
