package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
)

const transcriptFileName = "hopeai_transcript.txt"

type session struct {
	models.Session
	Current bool `json:"current"`
}

func (m Main) renderTranscript() string {
	m.conv.mu.Lock()
	defer m.conv.mu.Unlock()
	return m.conv.engine.Render()
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

// HandleTranscript returns the plain-text transcript of the current session.
func (m Main) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeText(w, m.renderTranscript())
}

// HandleTranscriptDownload returns the transcript as a file attachment.
func (m Main) HandleTranscriptDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", transcriptFileName))
	writeText(w, m.renderTranscript())
}

// HandleTranscriptCopy copies the transcript to the clipboard.
func (m Main) HandleTranscriptCopy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if m.clipboard == nil {
		http.Error(w, "Clipboard export is not configured", http.StatusServiceUnavailable)
		return
	}

	if err := m.clipboard.WriteAll(m.renderTranscript()); err != nil {
		m.logger.Error("Failed to copy transcript", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTranscriptExport writes the transcript to the configured export path.
func (m Main) HandleTranscriptExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if m.exportPath == "" {
		http.Error(w, "File export is not configured", http.StatusServiceUnavailable)
		return
	}

	if err := os.MkdirAll(filepath.Dir(m.exportPath), 0755); err != nil {
		m.logger.Error("Failed to create export directory", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := os.WriteFile(m.exportPath, []byte(m.renderTranscript()), 0644); err != nil {
		m.logger.Error("Failed to write transcript",
			slog.String("path", m.exportPath),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"path": m.exportPath})
}

// HandleSessions lists the recorded sessions, most recent first.
func (m Main) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions, err := m.store.Sessions(r.Context())
	if err != nil {
		m.logger.Error("Failed to get sessions", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res := make([]session, len(sessions))
	for i, s := range sessions {
		res[i] = session{Session: s, Current: s.ID == m.conv.sessionID}
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSessionTranscript returns the stored plain-text transcript of the session named by the "id"
// path value.
func (m Main) HandleSessionTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Session id is required", http.StatusBadRequest)
		return
	}

	entries, err := m.store.Entries(r.Context(), id)
	if err != nil {
		m.logger.Error("Failed to get entries",
			slog.String("sessionID", id),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeText(w, models.RenderTranscript(entries, m.assistantName()))
}

func (m Main) assistantName() string {
	m.conv.mu.Lock()
	defer m.conv.mu.Unlock()
	return m.conv.engine.AssistantName()
}
