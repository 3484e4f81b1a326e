package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/astromechza/sketchboard/pkg/export"
	"github.com/astromechza/sketchboard/pkg/hub"
)

func newRouter(h *hub.Hub, sendBuffer int) http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	s := &server{hub: h}
	r.Methods(http.MethodGet).Path("/board/sync").Handler(hub.NewWebsocketHandler(h, sendBuffer))
	r.Methods(http.MethodGet).Path("/board/latest").HandlerFunc(s.getLatest)
	r.Methods(http.MethodGet).Path("/board/presence").HandlerFunc(s.getPresence)
	r.Methods(http.MethodGet).Path("/board/stats").HandlerFunc(s.getStats)
	r.Methods(http.MethodGet).Path("/board/export.pdf").HandlerFunc(s.getPDF)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})
	return r
}

type server struct {
	hub *hub.Hub
}

func (s *server) getLatest(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	if _, err := writer.Write(s.hub.Snapshot()); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *server) getPresence(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, s.hub.Presence())
}

func (s *server) getStats(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, s.hub.Stats())
}

func (s *server) getPDF(writer http.ResponseWriter, _ *http.Request) {
	buf := new(bytes.Buffer)
	if err := export.PDF(buf, s.hub.Strokes()); err != nil {
		slog.Error("failed to export", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Add("Content-Type", "application/pdf")
	if _, err := buf.WriteTo(writer); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func writeJSON(writer http.ResponseWriter, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Add("Content-Type", "application/json")
	if _, err := writer.Write(raw); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}
