// Package vision wraps the external image analysis service used by the
// moderation pipeline: object/tag classification plus optional text
// extraction (OCR). Both calls are best-effort from the pipeline's point of
// view: an error here downgrades to "no violation found by that sub-check".
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Tag is one classifier finding.
type Tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Classifier is the analysis contract the pipeline depends on.
type Classifier interface {
	// ClassifyImage returns the tags detected in the image.
	ClassifyImage(ctx context.Context, image []byte) ([]Tag, error)

	// ExtractText returns any text recognized in the image.
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// Disabled is the classifier used when no analysis endpoint is configured.
// It finds nothing, leaving caption matching as the only detection source.
type Disabled struct{}

func (Disabled) ClassifyImage(context.Context, []byte) ([]Tag, error) { return nil, nil }
func (Disabled) ExtractText(context.Context, []byte) (string, error) { return "", nil }

// HTTPClassifier talks to an Azure-style analyze endpoint.
type HTTPClassifier struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPClassifier constructs a classifier with a per-call timeout.
func NewHTTPClassifier(endpoint, apiKey string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		Endpoint: strings.TrimRight(endpoint, "/"),
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: timeout},
	}
}

// analyzeResponse mirrors the subset of the analyze API the pipeline uses.
type analyzeResponse struct {
	Tags  []Tag `json:"tags"`
	Adult struct {
		IsAdultContent bool    `json:"isAdultContent"`
		AdultScore     float64 `json:"adultScore"`
		IsRacyContent  bool    `json:"isRacyContent"`
		RacyScore      float64 `json:"racyScore"`
	} `json:"adult"`
	ReadResult struct {
		Content string `json:"content"`
	} `json:"readResult"`
}

// ClassifyImage posts the image for tag + adult analysis. Adult findings are
// folded into synthetic tags so the pipeline applies one threshold rule.
func (c *HTTPClassifier) ClassifyImage(ctx context.Context, image []byte) ([]Tag, error) {
	res, err := c.analyze(ctx, image, "Tags,Adult")
	if err != nil {
		return nil, err
	}
	tags := res.Tags
	if res.Adult.IsAdultContent {
		tags = append(tags, Tag{Name: "adult content", Confidence: res.Adult.AdultScore})
	}
	if res.Adult.IsRacyContent {
		tags = append(tags, Tag{Name: "racy content", Confidence: res.Adult.RacyScore})
	}
	return tags, nil
}

// ExtractText posts the image for OCR and returns the recognized content.
func (c *HTTPClassifier) ExtractText(ctx context.Context, image []byte) (string, error) {
	res, err := c.analyze(ctx, image, "Read")
	if err != nil {
		return "", err
	}
	return res.ReadResult.Content, nil
}

func (c *HTTPClassifier) analyze(ctx context.Context, image []byte, features string) (*analyzeResponse, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("vision: endpoint not configured")
	}
	url := c.Endpoint + "/vision/v3.1/analyze?visualFeatures=" + features

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vision: analyze returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
