package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/screener/internal/contracts"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const streamWriteTimeout = 10 * time.Second

// StreamMessage is one frame pushed over the scan websocket
type StreamMessage struct {
	Type      string                `json:"type"` // progress, report, error
	Processed int                   `json:"processed,omitempty"`
	Total     int                   `json:"total,omitempty"`
	Qualified int                   `json:"qualified,omitempty"`
	Report    *contracts.ScanReport `json:"report,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// StreamScan reads one ScanRequest, streams progress frames and finishes
// with the report
// GET /ws/scan
func (h *ScanHandler) StreamScan(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var req ScanRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.send(conn, StreamMessage{Type: "error", Error: "invalid scan request"})
		return
	}

	// r.Context() is not canceled by a hijacked connection going away
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client sends nothing after the request; any read error means it left
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// progress runs on the scan goroutine only, so writes never overlap
	writeFailed := false
	progress := func(processed, total, qualified int) {
		if writeFailed {
			return
		}
		if err := h.send(conn, StreamMessage{Type: "progress", Processed: processed, Total: total, Qualified: qualified}); err != nil {
			writeFailed = true
			cancel()
		}
	}

	report, _, err := h.run(ctx, req, progress)
	if err != nil {
		h.send(conn, StreamMessage{Type: "error", Error: err.Error()})
		return
	}
	if writeFailed || ctx.Err() != nil {
		h.logger.WithRun(report.RunID).Warn("WebSocket client went away during scan")
		return
	}
	h.send(conn, StreamMessage{Type: "report", Report: report})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(streamWriteTimeout))
}

func (h *ScanHandler) send(conn *websocket.Conn, msg StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.WithError(err).Debug("WebSocket write failed")
		return err
	}
	return nil
}
