package machineprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider is a Provider backed by a JSON/HTTP cloud control-plane API,
// the shape most cloud-VM and Kubernetes-node provisioners expose (grounded
// on the request/result struct idiom of a Kubernetes-based agent-node
// provisioner). BaseURL points at that control plane, e.g.
// "https://fleet.internal/api/v1".
type HTTPProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPProvider constructs an HTTPProvider whose client times out each
// request after 30 seconds; a context deadline can shorten that limit but
// not extend it.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{BaseURL: baseURL, Client: &http.Client{Timeout: 30 * time.Second}}
}

type createRequestBody struct {
	MachineID string            `json:"machine_id"`
	Region    string            `json:"region"`
	Image     string            `json:"image,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type createResponseBody struct {
	MachineID string    `json:"machine_id"`
	IPv4      string    `json:"ipv4"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Create implements Provider.
func (p *HTTPProvider) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	var resp createResponseBody
	if err := p.doJSON(ctx, http.MethodPost, "/machines", createRequestBody{
		MachineID: req.MachineID, Region: req.Region, Image: req.Image, Labels: req.Labels,
	}, &resp); err != nil {
		return nil, fmt.Errorf("create machine %s: %w", req.MachineID, err)
	}
	return &CreateResult{MachineID: resp.MachineID, IPv4: resp.IPv4, URL: resp.URL, CreatedAt: resp.CreatedAt}, nil
}

// Destroy implements Provider. A 404 from the control plane is treated as
// success since Destroy must be idempotent.
func (p *HTTPProvider) Destroy(ctx context.Context, machineID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.BaseURL+"/machines/"+machineID, nil)
	if err != nil {
		return fmt.Errorf("build destroy request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("destroy machine %s: %w", machineID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("destroy machine %s: unexpected status %d", machineID, resp.StatusCode)
	}
	return nil
}

type captureResponseBody struct {
	Key        string `json:"key"`
	SizeBytes  int64  `json:"size_bytes"`
	ChunkCount int    `json:"chunk_count"`
}

// CaptureImage implements Provider.
func (p *HTTPProvider) CaptureImage(ctx context.Context, machineID string) (*ImageCaptureResult, error) {
	var resp captureResponseBody
	if err := p.doJSON(ctx, http.MethodPost, "/machines/"+machineID+"/capture-image", nil, &resp); err != nil {
		return nil, fmt.Errorf("capture image for %s: %w", machineID, err)
	}
	return &ImageCaptureResult{Key: resp.Key, SizeBytes: resp.SizeBytes, ChunkCount: resp.ChunkCount}, nil
}

type restoreRequestBody struct {
	Key string `json:"key"`
}

// RestoreImage implements Provider.
func (p *HTTPProvider) RestoreImage(ctx context.Context, machineID, key string) error {
	return p.doJSON(ctx, http.MethodPost, "/machines/"+machineID+"/restore-image", restoreRequestBody{Key: key}, nil)
}

func (p *HTTPProvider) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
