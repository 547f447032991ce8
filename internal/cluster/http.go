package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NodeStatus is what a node answers on its state endpoint.
type NodeStatus struct {
	State   string `json:"state"`
	Reason  string `json:"reason,omitempty"`
	Version uint64 `json:"cluster-state-version"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// GetJSON issues a GET to url and decodes the JSON response into out. Any
// status of 300 or above is an error.
func GetJSON(ctx context.Context, url string, out any) error {
	return GetJSONWith(ctx, httpClient, url, out)
}

// GetJSONWith is GetJSON with a caller supplied client.
func GetJSONWith(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
