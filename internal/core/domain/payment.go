package domain

import "time"

// Payment is a directional money movement between two facets.
type Payment struct {
	ID           string    `json:"id"`
	PayerFacetID FacetID   `json:"payer_facet_id"`
	PayeeFacetID FacetID   `json:"payee_facet_id"`
	AmountMinor  int64     `json:"amount_minor"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	CaseID       string    `json:"case_id,omitempty"`
	InvoiceID    string    `json:"invoice_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Invoice is issued by a vendor facet to a client facet.
type Invoice struct {
	ID             string    `json:"id"`
	Number         string    `json:"number"`
	IssuerFacetID  FacetID   `json:"issuer_facet_id"`
	RecipientFacet FacetID   `json:"recipient_facet_id"`
	AmountMinor    int64     `json:"amount_minor"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	DueAt          time.Time `json:"due_at"`
	CreatedAt      time.Time `json:"created_at"`
}
