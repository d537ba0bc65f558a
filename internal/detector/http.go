package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"time"
)

// Default HTTPDetector settings.
const (
	DefaultRequestTimeout = 2 * time.Second
	DefaultEncodeQuality  = 80
)

// HTTPDetector calls an external landmark-detection service over HTTP.
// Each request posts the JPEG-encoded frame and expects a JSON Result in
// response. The zero number of retries is deliberate: a missed frame costs
// less than a late one at 30-60fps.
type HTTPDetector struct {
	url    string
	cfg    Config
	client *http.Client
}

// NewHTTPDetector returns a detector backed by the landmark service at url.
// timeout bounds each request; if zero, DefaultRequestTimeout is used.
func NewHTTPDetector(url string, cfg Config, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPDetector{
		url:    url,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Detect implements Detector. The frame is JPEG-encoded and posted to the
// service; the response body is decoded as a Result. Any transport, status,
// or decode failure is returned as a *ServiceError.
func (d *HTTPDetector) Detect(ctx context.Context, frame image.Image) (*Result, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: DefaultEncodeQuality}); err != nil {
		return nil, &ServiceError{Err: fmt.Errorf("encode request frame: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &buf)
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	req.Header.Set("Content-Type", "image/jpeg")
	q := req.URL.Query()
	q.Set("max_hands", fmt.Sprintf("%d", d.cfg.MaxHands))
	q.Set("min_confidence", fmt.Sprintf("%g", d.cfg.MinConfidence))
	req.URL.RawQuery = q.Encode()

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ServiceError{Err: fmt.Errorf("decode response: %w", err)}
	}

	// Derive presence from the payload so a service that omits the presence
	// block still yields a consistent result.
	result.Presence.Hands = result.Presence.Hands || len(result.Hands) > 0
	result.Presence.Face = result.Presence.Face || result.Face != nil
	result.Presence.Pose = result.Presence.Pose || result.Pose != nil

	return &result, nil
}

// Close implements Detector.
func (d *HTTPDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
