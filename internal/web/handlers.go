package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/LaneGo/internal/debug"
	"github.com/cjeanneret/LaneGo/internal/hw/gpio"
	"github.com/cjeanneret/LaneGo/internal/hw/stepper"
	"github.com/cjeanneret/LaneGo/internal/logic/dispense"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Machine runs motor commands. *motion.Controller implements it.
type Machine interface {
	Rotate(cmd stepper.Command) (stepper.Result, error)
	RotateLists(channels []int, directions []stepper.Direction, speeds, rotations []float64) ([]stepper.Result, error)
	ZeroAllPins() error
}

// Dispenser runs orders. *dispense.Sequence implements it.
type Dispenser interface {
	Validate(order dispense.Order) error
	Run(ctx context.Context, order dispense.Order) (dispense.Report, error)
}

// Info describes the machine for GET /config.
type Info struct {
	Channels         int     `json:"channels"`
	Capacity         int     `json:"capacity"`
	StepsPerRev      int     `json:"steps_per_rev"`
	Sequence         string  `json:"sequence"`
	Layout           [][]int `json:"layout"`
	RotationsPerItem float64 `json:"rotations_per_item"`
	Speed            float64 `json:"speed"`
	Direction        string  `json:"direction"`
}

// BatchRequest is the parallel-list body of POST /batch.
type BatchRequest struct {
	Channels   []int               `json:"channels"`
	Directions []stepper.Direction `json:"directions"`
	Speeds     []float64           `json:"speeds"`
	Rotations  []float64           `json:"rotations"`
}

// Handlers holds dependencies for HTTP handlers. Only one motor operation
// runs at a time; others get 409 Conflict.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Machine     Machine
	Dispenser   Dispenser
	Info        Info

	baseCtx  context.Context
	upgrader websocket.Upgrader

	runningMu sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewHandlers creates handlers. A nil dispenser makes POST /dispense
// answer 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, machine Machine, dispenser Dispenser, info Info) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Machine:     machine,
		Dispenser:   dispenser,
		Info:        info,
		baseCtx:     context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// tryStart claims the motors. cancel, if not nil, is what POST
// /dispense/cancel calls until finish.
func (h *Handlers) tryStart(cancel context.CancelFunc) bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	if h.running {
		return false
	}
	h.running = true
	h.cancel = cancel
	h.done = make(chan struct{})
	return true
}

func (h *Handlers) finish() {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	h.running = false
	h.cancel = nil
	if h.done != nil {
		close(h.done)
		h.done = nil
	}
}

// Busy reports whether a motor operation is running.
func (h *Handlers) Busy() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// Wait blocks until the running operation, if any, has finished.
func (h *Handlers) Wait() {
	h.runningMu.Lock()
	done := h.done
	h.runningMu.Unlock()
	if done != nil {
		<-done
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an operation error to an HTTP status: hardware faults are
// server errors, everything else was a bad request.
func statusFor(err error) int {
	if errors.Is(err, stepper.ErrHardwareWrite) || errors.Is(err, gpio.ErrPinNotMapped) {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func (h *Handlers) fail(w http.ResponseWriter, op string, err error, body map[string]interface{}) {
	debug.Error(err)
	h.Broadcaster.Broadcast("error", op, err.Error())
	if body == nil {
		body = map[string]interface{}{}
	}
	body["error"] = err.Error()
	writeJSON(w, statusFor(err), body)
}

// HandleConfig returns the machine description as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Info)
}

// HandleRotate handles POST /rotate: one motor, blocking until done.
func (h *Handlers) HandleRotate(w http.ResponseWriter, r *http.Request) {
	var cmd stepper.Command
	if err := decodeJSON(w, r, &cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.tryStart(nil) {
		http.Error(w, "motors busy", http.StatusConflict)
		return
	}
	defer h.finish()

	h.Broadcaster.Broadcast("info", "rotate", fmt.Sprintf("channel %d %s: %g turns at %g", cmd.Channel, cmd.Direction, cmd.Rotations, cmd.Speed))
	res, err := h.Machine.Rotate(cmd)
	if err != nil {
		h.fail(w, "rotate", err, map[string]interface{}{"result": res})
		return
	}
	h.Broadcaster.Broadcast("info", "rotate", fmt.Sprintf("channel %d done, %d steps", res.Channel, res.Steps))
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": res})
}

// HandleBatch handles POST /batch: several motors at once.
func (h *Handlers) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.tryStart(nil) {
		http.Error(w, "motors busy", http.StatusConflict)
		return
	}
	defer h.finish()

	h.Broadcaster.Broadcast("info", "batch", fmt.Sprintf("channels %v", req.Channels))
	results, err := h.Machine.RotateLists(req.Channels, req.Directions, req.Speeds, req.Rotations)
	if err != nil {
		h.fail(w, "batch", err, map[string]interface{}{"results": results})
		return
	}
	h.Broadcaster.Broadcast("info", "batch", fmt.Sprintf("channels %v done", req.Channels))
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// HandleZero handles POST /zero: every pin low.
func (h *Handlers) HandleZero(w http.ResponseWriter, r *http.Request) {
	if !h.tryStart(nil) {
		http.Error(w, "motors busy", http.StatusConflict)
		return
	}
	defer h.finish()

	if err := h.Machine.ZeroAllPins(); err != nil {
		debug.Error(err)
		h.Broadcaster.Broadcast("error", "zero", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.Broadcaster.Broadcast("info", "zero", "all pins low")
	writeJSON(w, http.StatusOK, map[string]string{"status": "zeroed"})
}

// HandleDispense handles POST /dispense. The order runs in the background;
// progress is reported on the status streams.
func (h *Handlers) HandleDispense(w http.ResponseWriter, r *http.Request) {
	var order dispense.Order
	if err := decodeJSON(w, r, &order); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Dispenser == nil {
		http.Error(w, "dispenser not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.Dispenser.Validate(order); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithCancel(h.baseCtx)
	if !h.tryStart(cancel) {
		cancel()
		http.Error(w, "motors busy", http.StatusConflict)
		return
	}

	go func() {
		defer h.finish()
		defer cancel()

		h.Broadcaster.Broadcast("info", "dispense", "order "+order.ID+" started")
		rep, err := h.Dispenser.Run(ctx, order)
		if err != nil {
			debug.Error(err)
			h.Broadcaster.Broadcast("error", "dispense", "order "+order.ID+" failed: "+err.Error())
			return
		}
		h.Broadcaster.Broadcast("info", "dispense", fmt.Sprintf("order %s complete in %d batches", rep.OrderID, rep.Batches))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "order": order.ID})
}

// HandleCancel handles POST /dispense/cancel. The batch in progress still
// completes.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	cancel := h.cancel
	h.runningMu.Unlock()
	if cancel == nil {
		http.Error(w, "no dispense running", http.StatusNotFound)
		return
	}
	cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: " + string(msg) + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleStatusWS handles GET /status/ws: the same events as the SSE
// stream, one JSON text message each.
func (h *Handlers) HandleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Verbose("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Client messages are ignored; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
