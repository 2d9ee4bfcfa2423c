package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"facebot-go/internal/config"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrNoFace is returned when the encoder finds no face in the image.
	ErrNoFace = errors.New("no face found in image")

	// ErrTooManyFaces is returned when enrollment expects exactly one face
	// but the encoder found several.
	ErrTooManyFaces = errors.New("more than one face found in image")
)

// Box is the bounding box of a detected face.
type Box struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Face is one detected face with its encoding.
type Face struct {
	Box         Box       `json:"box"`
	Probability float64   `json:"probability"`
	Encoding    []float32 `json:"encoding"`
}

// encodeResponse is the encoder service's answer.
type encodeResponse struct {
	Faces         []Face  `json:"faces"`
	ExecutionTime float64 `json:"execution_time"`
}

// Client talks to the external face encoder service. The service wraps the
// actual detection/embedding model behind a small HTTP API.
type Client struct {
	cfg        config.RecognizerConfig
	httpClient *http.Client
}

// NewClient creates a new encoder client.
func NewClient(cfg config.RecognizerConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

// Ping checks whether the encoder service is reachable.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	apiURL, err := url.JoinPath(c.cfg.URL, "/api/v1/status")
	if err != nil {
		return false, fmt.Errorf("failed to create API URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	body, _ := io.ReadAll(resp.Body)
	log.Warnf("Encoder status check failed (status %d): %s", resp.StatusCode, string(body))
	return false, nil
}

// Encode sends an image to the encoder and returns all detected faces with
// their encodings, ErrNoFace when the image contains none.
func (c *Client) Encode(ctx context.Context, imageData []byte, filename string) ([]Face, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	detProb := fmt.Sprintf("%.2f", c.cfg.DetProbThreshold)
	if err := writer.WriteField("det_prob_threshold", detProb); err != nil {
		return nil, fmt.Errorf("failed to add det_prob_threshold field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	apiURL, err := url.JoinPath(c.cfg.URL, "/api/v1/encode")
	if err != nil {
		return nil, fmt.Errorf("failed to create API URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("x-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	log.Debugf("Encoder request for %s took %s", filename, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("encoder API returned error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Faces) == 0 {
		return nil, ErrNoFace
	}

	log.Debugf("Encoder detected %d face(s) in %s", len(result.Faces), filename)
	return result.Faces, nil
}

// EncodeSingle encodes an image expected to contain exactly one face, the
// enrollment contract. More than one face is an error so mixed photos never
// poison a label.
func (c *Client) EncodeSingle(ctx context.Context, imageData []byte, filename string) (*Face, error) {
	faces, err := c.Encode(ctx, imageData, filename)
	if err != nil {
		return nil, err
	}
	if len(faces) > 1 {
		return nil, ErrTooManyFaces
	}
	return &faces[0], nil
}
