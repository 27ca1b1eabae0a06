package registrator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

type registrationBody struct {
	PortalID string `json:"portal_id"`
	ClientID string `json:"client_id"`
}

func httpNewRequest(ctx context.Context, endpoint, portalID, clientID string) (*http.Request, error) {
	body, err := json.Marshal(registrationBody{PortalID: portalID, ClientID: clientID})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
