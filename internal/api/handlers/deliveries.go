package handlers

import (
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"delivery-dispatch-service/internal/services"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// DeliveryHandler exposes delivery tracking.
type DeliveryHandler struct {
	Tracker *services.Tracker
	Broker  ports.EventBroker
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, chi.URLParam(r, "id"))
}

// Advance moves a delivery to the status named in the body.
func (h *DeliveryHandler) Advance(w http.ResponseWriter, r *http.Request) {
	var req dto.AdvanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next, err := domain.ParseDeliveryStatus(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.Tracker.Advance(r.Context(), id, next); err != nil {
		writeDomainError(w, r, "advance delivery", err)
		return
	}
	h.respond(w, r, id)
}

func (h *DeliveryHandler) Delay(w http.ResponseWriter, r *http.Request) {
	var req dto.DelayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Minutes <= 0 {
		writeError(w, r, http.StatusBadRequest, "minutes must be > 0")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.Tracker.RecordDelay(r.Context(), id, req.Minutes, strings.TrimSpace(req.Reason)); err != nil {
		writeDomainError(w, r, "record delay", err)
		return
	}
	h.respond(w, r, id)
}

// Cancel is the operator cancellation, legal from any non-terminal status.
func (h *DeliveryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Tracker.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, r, "cancel delivery", err)
		return
	}
	h.respond(w, r, id)
}

// Stream pushes the delivery's events over a websocket until the delivery
// reaches a terminal status or the client goes away.
func (h *DeliveryHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.Broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, "event streaming is disabled")
		return
	}

	// Subscribe before the snapshot so no transition falls between them.
	events := h.Broker.Subscribe(id)
	defer h.Broker.Unsubscribe(id, events)

	rec, err := h.Tracker.Get(id)
	if err != nil {
		writeDomainError(w, r, "stream delivery", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	progress, _ := h.Tracker.Progress(id)
	if err := write(ports.DeliveryEvent{
		Type:       "delivery.snapshot",
		DeliveryID: id,
		At:         time.Now(),
		Data:       map[string]any{"delivery": dto.FromDelivery(rec, progress)},
	}); err != nil {
		return
	}
	if rec.Status.Terminal() {
		closeStream(conn, string(rec.Status))
		return
	}

	// Reads only serve control frames; a read error means the client left.
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := write(evt); err != nil {
				obs.L().Debug("websocket write failed", zap.String("delivery_id", id), zap.Error(err))
				return
			}
			if st, _ := evt.Data["status"].(string); evt.Type == services.EventDeliveryStatus && domain.DeliveryStatus(st).Terminal() {
				closeStream(conn, st)
				return
			}
		}
	}
}

func closeStream(conn *websocket.Conn, status string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "delivery "+status),
		time.Now().Add(wsWriteWait))
}

func (h *DeliveryHandler) respond(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.Tracker.Get(id)
	if err != nil {
		writeDomainError(w, r, "get delivery", err)
		return
	}
	progress, err := h.Tracker.Progress(id)
	if err != nil {
		writeDomainError(w, r, "get delivery", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.FromDelivery(rec, progress))
}
