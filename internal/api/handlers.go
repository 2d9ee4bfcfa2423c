package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"facebot-go/internal/core/models"
	"facebot-go/internal/core/pipeline"
	"facebot-go/internal/recognizer"
	"facebot-go/internal/utils"
)

// handleHealth reports whether the database and the face encoder are
// reachable. The encoder being down degrades the state rather than failing
// the endpoint, so orchestrators can tell the two conditions apart.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	encoderStatus := "ok"

	if _, err := s.repo.GetLabels(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error", "db": err.Error(),
		})
		return
	}

	if ok, err := s.recognizer.Ping(r.Context()); err != nil {
		log.WithError(err).Warn("Face encoder is not reachable")
		status = "degraded"
		encoderStatus = err.Error()
	} else if !ok {
		status = "degraded"
		encoderStatus = "not ready"
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"db":      "ok",
		"encoder": encoderStatus,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.GetStatistics()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to collect statistics")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   stats,
		"system": utils.GetSystemStats(s.pool),
	})
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.repo.GetLabels()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list labels")
		return
	}
	if labels == nil {
		labels = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"labels": labels})
}

// handlePredict accepts a multipart image upload under "file" and returns the
// classification result.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.Telegram.MaxPhotoBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.Telegram.MaxPhotoBytes+1))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}
	if int64(len(data)) > s.cfg.Telegram.MaxPhotoBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "image file size too large")
		return
	}

	source := r.FormValue("source")
	if source == "" {
		source = models.SourceAPI
	}

	start := time.Now()
	result, err := s.svc.Predict(r.Context(), data, source)
	if err != nil {
		switch {
		case errors.Is(err, recognizer.ErrNoFace):
			respondError(w, http.StatusUnprocessableEntity, "no face found")
		case errors.Is(err, pipeline.ErrNoModel):
			respondError(w, http.StatusConflict, "no model trained")
		default:
			log.WithError(err).Error("Prediction request failed")
			respondError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	log.Debugf("Prediction request served in %s", time.Since(start))
	respondJSON(w, http.StatusOK, result)
}
