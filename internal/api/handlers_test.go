package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facebot-go/internal/classifier"
	"facebot-go/internal/config"
	"facebot-go/internal/core/models"
	"facebot-go/internal/core/pipeline"
	"facebot-go/internal/db"
	"facebot-go/internal/db/repository"
	"facebot-go/internal/recognizer"
)

type stubEncoder struct {
	encodings map[string][]float32
}

// fullEncoding pads the given values to a full-length encoding.
func fullEncoding(vals ...float32) []float32 {
	v := make([]float32, classifier.EncodingDim)
	copy(v, vals)
	return v
}

func (s *stubEncoder) Encode(_ context.Context, imageData []byte, _ string) ([]recognizer.Face, error) {
	enc, ok := s.encodings[string(imageData)]
	if !ok {
		return nil, recognizer.ErrNoFace
	}
	return []recognizer.Face{{Probability: 0.99, Encoding: enc}}, nil
}

func (s *stubEncoder) EncodeSingle(ctx context.Context, imageData []byte, filename string) (*recognizer.Face, error) {
	faces, err := s.Encode(ctx, imageData, filename)
	if err != nil {
		return nil, err
	}
	return &faces[0], nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	encoderBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(encoderBackend.Close)

	dataDir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{
			DataDir:  dataDir,
			ImageDir: filepath.Join(dataDir, "faces"),
		},
		DB:       config.DBConfig{File: filepath.Join(dataDir, "test.db")},
		Telegram: config.TelegramConfig{MaxPhotoBytes: 1 << 20},
		Recognizer: config.RecognizerConfig{
			URL:        encoderBackend.URL,
			TimeoutSec: 5,
		},
		Classifier: config.ClassifierConfig{KNNWeight: 1, DistThreshold: 0.6},
	}

	gormDB, err := db.Open(cfg.DB)
	require.NoError(t, err)
	repo := repository.NewSQLiteRepository(gormDB)

	enc := &stubEncoder{encodings: map[string][]float32{
		"alice-1": fullEncoding(0.1),
		"alice-2": fullEncoding(0, 0.1),
		"bob-1":   fullEncoding(5.1, 5, 5, 5),
		"bob-2":   fullEncoding(5, 5.1, 5, 5),
	}}
	pipe := pipeline.New(cfg, repo, enc)
	t.Cleanup(pipe.Shutdown)
	svc := pipe.Service()

	ctx := context.Background()
	require.NoError(t, svc.Train(ctx, []byte("alice-1"), "alice", models.SourceAPI))
	require.NoError(t, svc.Train(ctx, []byte("alice-2"), "alice", models.SourceAPI))
	require.NoError(t, svc.Train(ctx, []byte("bob-1"), "bob", models.SourceAPI))
	require.NoError(t, svc.Train(ctx, []byte("bob-2"), "bob", models.SourceAPI))

	server := NewServer(cfg, repo, svc, pipe.Pool(), recognizer.NewClient(cfg.Recognizer))
	ts := httptest.NewServer(server.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]string
	status := getJSON(t, ts.URL+"/api/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
	assert.Equal(t, "ok", body["encoder"])
}

func TestLabels(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Labels []string `json:"labels"`
	}
	status := getJSON(t, ts.URL+"/api/labels", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.ElementsMatch(t, []string{"alice", "bob"}, body.Labels)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Data struct {
			TotalSamples int64 `json:"total_samples"`
			LabelCount   int64 `json:"label_count"`
		} `json:"data"`
		System struct {
			WorkerCount int `json:"worker_count"`
		} `json:"system"`
	}
	status := getJSON(t, ts.URL+"/api/stats", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(4), body.Data.TotalSamples)
	assert.Equal(t, int64(2), body.Data.LabelCount)
	assert.GreaterOrEqual(t, body.System.WorkerCount, 2)
}

func postImage(t *testing.T, url string, image []byte) *http.Response {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "upload.jpg")
	require.NoError(t, err)
	_, err = part.Write(image)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(url, writer.FormDataContentType(), body)
	require.NoError(t, err)
	return resp
}

func TestPredict(t *testing.T) {
	ts := newTestServer(t)

	resp := postImage(t, ts.URL+"/api/predict", []byte("alice-1"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result pipeline.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Faces, 1)
	assert.Equal(t, "alice", result.Faces[0].Label)
}

func TestPredictNoFace(t *testing.T) {
	ts := newTestServer(t)

	resp := postImage(t, ts.URL+"/api/predict", []byte("landscape"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPredictNoFile(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/predict", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
