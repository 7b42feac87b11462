package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"call-qa-go/internal/batch"
	"call-qa-go/internal/criteria"
	"call-qa-go/internal/evalmodel"
	"call-qa-go/internal/events"
	"call-qa-go/internal/logger"
	"call-qa-go/internal/orchestrator"
	"call-qa-go/internal/speech"
	"call-qa-go/internal/store"
	"call-qa-go/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "call-qa-go").Info("starting service")

	db := store.NewMemory()
	audio, err := store.NewLocalAudio(envOr("AUDIO_DIR", "data/audio"))
	if err != nil {
		log.WithError(err).Fatal("audio store init failed")
	}

	provider := speech.NewClient(speech.Config{
		BaseURL: envOr("SPEECH_API_URL", "https://api.speech-provider.example"),
		APIKey:  os.Getenv("SPEECH_API_KEY"),
	})
	model := evalmodel.NewClient(evalmodel.Config{
		GatewayURL: os.Getenv("LLM_GATEWAY_URL"),
		APIKey:     os.Getenv("LLM_API_KEY"),
		Model:      os.Getenv("LLM_MODEL"),
	})
	rubrics := criteria.NewProvider()

	publisher := events.New(&events.Config{
		Enabled:          os.Getenv("KAFKA_ENABLED") == "true",
		Brokers:          splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
		TopicTranscribed: envOr("KAFKA_TOPIC_TRANSCRIBED", "callqa.transcription.completed"),
		TopicEvaluated:   envOr("KAFKA_TOPIC_EVALUATED", "callqa.evaluation.recorded"),
	})
	defer publisher.Close()

	orch := orchestrator.New(provider, model, db, audio, rubrics, publisher, orchestrator.Config{
		WebhookURL:   os.Getenv("TRANSCRIPTION_WEBHOOK_URL"),
		PollInterval: envDuration("POLL_INTERVAL_SECONDS", 10),
		MaxWait:      envDuration("POLL_MAX_WAIT_SECONDS", 600),
	})
	coordinator := batch.NewCoordinator(orch, audio)

	pollCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	go orch.RunPoller(pollCtx)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	mux.Handle("/metrics", promhttp.Handler())

	// single call submission: multipart form with "file" and "call_id"
	mux.HandleFunc("POST /api/calls", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "submit")

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		callID := r.FormValue("call_id")
		if callID == "" {
			http.Error(w, "missing call_id", http.StatusBadRequest)
			return
		}

		handle, err := audio.Store(callID, file)
		if err != nil {
			reqLog.WithError(err).Error("audio store failed")
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		reqLog = reqLog.WithField("call_id", callID).WithField("filename", header.Filename)

		job, err := orch.Submit(r.Context(), callID, handle)
		if err != nil {
			reqLog.WithError(err).Warn("submission failed")
			writeJSON(w, http.StatusBadGateway, job)
			return
		}
		reqLog.WithField("job_id", job.ID).Info("job accepted")
		writeJSON(w, http.StatusAccepted, job)
	})

	// batch submission: multipart form with repeated "files"; call ids derive
	// from filenames unless a parallel "call_ids" field is sent
	mux.HandleFunc("POST /api/calls/batch", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "batch")

		if err := r.ParseMultipartForm(256 << 20); err != nil {
			http.Error(w, "invalid multipart form", http.StatusBadRequest)
			return
		}
		fileHeaders := r.MultipartForm.File["files"]
		if len(fileHeaders) == 0 {
			http.Error(w, "no files", http.StatusBadRequest)
			return
		}
		callIDs := r.MultipartForm.Value["call_ids"]

		var items []batch.Item
		for i, fh := range fileHeaders {
			f, err := fh.Open()
			if err != nil {
				http.Error(w, "unreadable file "+fh.Filename, http.StatusBadRequest)
				return
			}
			defer f.Close()
			callID := fh.Filename
			if i < len(callIDs) && callIDs[i] != "" {
				callID = callIDs[i]
			}
			items = append(items, batch.Item{CallID: callID, Filename: fh.Filename, Audio: f})
		}

		mode := batch.ModeSerial
		if r.URL.Query().Get("mode") == "parallel" {
			mode = batch.ModeParallel
		}
		workers, _ := strconv.Atoi(r.URL.Query().Get("workers"))

		result := coordinator.Run(r.Context(), items, mode, workers)
		reqLog.WithField("total", result.Total).WithField("failed", result.Failed).Info("batch processed")
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		view, err := orch.GetJobStatus(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	})

	mux.HandleFunc("GET /api/calls/{id}/evaluation", func(w http.ResponseWriter, r *http.Request) {
		ev, err := orch.GetEvaluation(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if ev == nil {
			http.Error(w, "no evaluation recorded", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	})

	mux.HandleFunc("POST /api/calls/{id}/reanalyze", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "reanalyze")
		ev, err := orch.TriggerReanalysis(r.Context(), r.PathValue("id"), r.URL.Query().Get("criteria_set"))
		if err != nil {
			reqLog.WithError(err).Warn("reanalysis failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	})

	// provider webhook ingress; sender authentication belongs to the proxy
	// layer in front of this service
	mux.HandleFunc("POST /api/webhooks/transcription", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "webhook")
		var payload struct {
			TranscriptID string `json:"transcript_id"`
			Status       string `json:"status"`
			Error        string `json:"error,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.TranscriptID == "" {
			http.Error(w, "invalid webhook payload", http.StatusBadRequest)
			return
		}
		if err := orch.HandleWebhook(r.Context(), payload.TranscriptID, payload.Status, payload.Error); err != nil {
			reqLog.WithError(err).Warn("webhook handling failed")
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// optional bulk import from a spreadsheet manifest at startup
	if manifest := os.Getenv("BATCH_MANIFEST"); manifest != "" {
		go importManifest(manifest, coordinator)
	}

	addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Minute, // large uploads
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func importManifest(path string, coordinator *batch.Coordinator) {
	log := logger.New().WithField("component", "manifest-import").WithField("path", path)
	entries, err := batch.LoadManifest(path)
	if err != nil {
		log.WithError(err).Error("manifest load failed")
		return
	}
	var items []batch.Item
	for _, e := range entries {
		f, err := os.Open(e.AudioPath)
		if err != nil {
			log.WithError(err).WithField("audio_path", e.AudioPath).Warn("skipping unreadable recording")
			continue
		}
		defer f.Close()
		callID := e.CallID
		if callID == "" {
			callID = e.AudioPath
		}
		items = append(items, batch.Item{CallID: callID, Filename: e.AudioPath, Audio: f})
	}
	log.WithField("items", len(items)).Info("manifest import starting")
	result := coordinator.Run(context.Background(), items, batch.ModeSerial, 1)
	log.WithField("succeeded", result.Succeeded).WithField("failed", result.Failed).Info("manifest import finished")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.New().WithError(err).Error("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, types.ErrNotCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDuration(k string, defSeconds int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(defSeconds) * time.Second
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
