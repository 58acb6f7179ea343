package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"backend-fieldforce/internal/store"
)

// Gateway uploads sample batches to the remote CRM endpoint. Uploads are
// best effort: the caller leaves samples PENDING on any error and retries
// on its next sync tick.
type Gateway interface {
	Upload(ctx context.Context, samples []store.Sample) error
}

type HTTPGateway struct {
	endpoint string
	client   *http.Client
}

func NewHTTPGateway(endpoint string) *HTTPGateway {
	return &HTTPGateway{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type uploadRequest struct {
	Samples []store.Sample `json:"samples"`
}

func (g *HTTPGateway) Upload(ctx context.Context, samples []store.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	payload, err := json.Marshal(uploadRequest{Samples: samples})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sync endpoint returned %d", resp.StatusCode)
	}
	return nil
}
