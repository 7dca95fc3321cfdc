// Package leads turns form submissions stored under an unknown collection
// name into a newest-first list, and derives the dashboard views from it.
package leads

import (
	"fmt"
	"time"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// Lead statuses, in pipeline order.
const (
	StatusLeads     = "leads"
	StatusContacted = "contacted"
	StatusWon       = "won"
	StatusLost      = "lost"
)

// Lead is one form submission. CreatedAt and Timestamp keep the raw stored
// values; At is the resolved instant.
type Lead struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`

	Name        string `json:"name"`
	FormType    string `json:"formType"`
	Status      string `json:"status,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Category    string `json:"category,omitempty"`
	WorkEmail   string `json:"workEmail,omitempty"`
	Email       string `json:"email,omitempty"`
	Website     string `json:"website,omitempty"`
	Budget      string `json:"budget,omitempty"`
	Goals       string `json:"goals,omitempty"`
	Message     string `json:"message,omitempty"`

	CreatedAt any `json:"createdAt,omitempty"`
	Timestamp any `json:"timestamp,omitempty"`

	At    time.Time `json:"receivedAt,omitzero"`
	HasAt bool      `json:"-"`
}

// FromDocument decodes a stored document. Unknown fields are ignored and
// non-string scalars are rendered as text.
func FromDocument(collection string, d docstore.Document) Lead {
	data := d.Data
	l := Lead{
		ID:          d.ID,
		Collection:  collection,
		Name:        text(data["name"]),
		FormType:    text(data["formType"]),
		Status:      text(data["status"]),
		PhoneNumber: text(data["phoneNumber"]),
		Category:    text(data["category"]),
		WorkEmail:   text(data["workEmail"]),
		Email:       text(data["email"]),
		Website:     text(data["website"]),
		Budget:      text(data["budget"]),
		Goals:       text(data["goals"]),
		Message:     text(data["message"]),
		CreatedAt:   data["createdAt"],
		Timestamp:   data["timestamp"],
	}
	l.At, l.HasAt = ResolveInstant(l.CreatedAt, l.Timestamp)
	return l
}

func fromDocuments(collection string, docs []docstore.Document) []Lead {
	out := make([]Lead, 0, len(docs))
	for _, d := range docs {
		out = append(out, FromDocument(collection, d))
	}
	return out
}

// Contact returns the best address to reach the lead.
func (l Lead) Contact() string {
	if l.WorkEmail != "" {
		return l.WorkEmail
	}
	if l.Email != "" {
		return l.Email
	}
	return l.PhoneNumber
}

// StatusOrDefault returns the pipeline column of the lead.
func (l Lead) StatusOrDefault() string {
	switch l.Status {
	case StatusContacted, StatusWon, StatusLost:
		return l.Status
	default:
		return StatusLeads
	}
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
