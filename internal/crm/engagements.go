package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"call-orchestrator/internal/calls"
)

const engagementsPath = "/engagements/v1/engagements"

type engagementRequest struct {
	Engagement   engagementHeader       `json:"engagement"`
	Associations engagementAssociations `json:"associations"`
	Metadata     callMetadata           `json:"metadata"`
}

type engagementHeader struct {
	Active    bool   `json:"active"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type engagementAssociations struct {
	ContactIDs []string `json:"contactIds"`
}

type callMetadata struct {
	Body                 string `json:"body"`
	Status               string `json:"status"`
	FromNumber           string `json:"fromNumber"`
	ToNumber             string `json:"toNumber"`
	DurationMilliseconds int64  `json:"durationMilliseconds"`
}

// CreateLoggedCall attaches a logged-call activity to a contact and returns its id.
//
// The engagements endpoint keeps its own refresh-once-on-401 path rather than
// going through Send.
func (c *Client) CreateLoggedCall(ctx context.Context, lc calls.LoggedCall) (string, error) {
	if lc.ContactID == "" {
		return "", ErrMissingContactID
	}
	if lc.Timestamp.IsZero() {
		lc.Timestamp = time.Now()
	}
	if lc.Status == "" {
		lc.Status = calls.LoggedCallStatusCompleted
	}

	payload, err := encodeBody(engagementRequest{
		Engagement: engagementHeader{
			Active:    true,
			Type:      "CALL",
			Timestamp: lc.Timestamp.UnixMilli(),
		},
		Associations: engagementAssociations{ContactIDs: []string{lc.ContactID}},
		Metadata: callMetadata{
			Body:   lc.Body,
			Status: lc.Status,
		},
	})
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, engagementsPath, payload, c.tokens.Token())
	if err != nil {
		return "", err
	}
	if isExpiredAuth(resp) {
		c.log.Info("crm token expired on engagement create, refreshing")
		tok, err := c.tokens.Refresh(ctx)
		if err != nil {
			return "", err
		}
		if resp, err = c.do(ctx, http.MethodPost, engagementsPath, payload, tok); err != nil {
			return "", err
		}
	}
	if err := resp.Err(); err != nil {
		return "", err
	}

	var out struct {
		Engagement struct {
			ID json.Number `json:"id"`
		} `json:"engagement"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.Engagement.ID == "" {
		return "", fmt.Errorf("crm: engagement response missing id")
	}
	return out.Engagement.ID.String(), nil
}
