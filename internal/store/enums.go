package store

// Flow ENUMs
const (
	FlowTypeCountryFilter = "country_filter"
	FlowTypeOfferRedirect = "offer_redirect"
)

// Campaign Offer ENUMs
const (
	OfferStatusActive  = "active"
	OfferStatusRemoved = "removed"
)

// Flow Offer Change ENUMs
const (
	UndoActionDelete     = "delete"
	UndoActionDeactivate = "deactivate"
	UndoActionReactivate = "reactivate"
	UndoActionUnbind     = "unbind"
)
