package crm

import (
	"context"
	"net/http"
	"net/url"
)

var contactProperties = []string{"hs_lead_status", "phone", "firstname", "lastname"}

// Contact is the subset of a CRM contact record the orchestrator reads.
type Contact struct {
	ID         string            `json:"id"`
	Properties ContactProperties `json:"properties"`
}

type ContactProperties struct {
	LeadStatus string `json:"hs_lead_status"`
	Phone      string `json:"phone"`
	FirstName  string `json:"firstname"`
	LastName   string `json:"lastname"`
}

func contactPath(id string) string {
	return "/crm/v3/objects/contacts/" + url.PathEscape(id)
}

// GetContact reads a contact with the properties the intake workflow needs.
func (c *Client) GetContact(ctx context.Context, id string) (Contact, error) {
	if id == "" {
		return Contact{}, ErrMissingContactID
	}
	q := url.Values{}
	for _, p := range contactProperties {
		q.Add("properties", p)
	}

	resp, err := c.Send(ctx, http.MethodGet, contactPath(id)+"?"+q.Encode(), nil)
	if err != nil {
		return Contact{}, err
	}
	if err := resp.Err(); err != nil {
		return Contact{}, err
	}

	var out Contact
	if err := resp.Decode(&out); err != nil {
		return Contact{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

// UpdateContactStatus writes the lead status and, when non-empty, the call summary.
func (c *Client) UpdateContactStatus(ctx context.Context, id, status, summary string) error {
	if id == "" {
		return ErrMissingContactID
	}
	props := map[string]string{"hs_lead_status": status}
	if summary != "" {
		props[c.summaryProperty] = summary
	}

	resp, err := c.Send(ctx, http.MethodPatch, contactPath(id), map[string]any{"properties": props})
	if err != nil {
		return err
	}
	return resp.Err()
}
