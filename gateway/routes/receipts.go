package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"vatchain/core/sequencer"
	"vatchain/crypto"
	"vatchain/indexer"
)

const (
	wsWriteTimeout = 10 * time.Second
	streamBuffer   = 128
)

var errIndexDisabled = errors.New("receipt index is not configured")

// queryReceipts serves GET /v1/receipts?caller=&op=&after=&limit= from the
// SQL index.
func (lr *ledgerRoutes) queryReceipts(w http.ResponseWriter, r *http.Request) {
	if lr.indexer == nil {
		writeJSONError(w, http.StatusNotImplemented, errIndexDisabled)
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{Op: q.Get("op")}
	if raw := strings.TrimSpace(q.Get("caller")); raw != "" {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid caller: %w", err))
			return
		}
		filter.Caller = addr.String()
	}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid after: %w", err))
			return
		}
		filter.After = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}
	receipts, err := lr.indexer.Query(r.Context(), filter)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"receipts": receipts})
}

func (lr *ledgerRoutes) verifyChain(w http.ResponseWriter, r *http.Request) {
	respond(w)(lr.seq.Receipts().Verify())
}

// stream upgrades to a websocket and pushes receipts as JSON text messages.
// With ?cursor=N the receipts numbered above N are replayed first.
func (lr *ledgerRoutes) stream(w http.ResponseWriter, r *http.Request) {
	var cursor uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid cursor: %w", err))
			return
		}
		cursor = n
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: lr.origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Clients only read; CloseRead surfaces their close frame as ctx cancellation.
	ctx := conn.CloseRead(r.Context())
	if err := lr.streamReceipts(ctx, conn, cursor); err != nil {
		if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
			lr.log().Debug("receipt stream ended", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

// originPatterns turns configured browser origins into the host patterns the
// websocket handshake matches the Origin header against. Bare host patterns
// such as *.example.com pass through unchanged.
func originPatterns(origins []string) []string {
	var patterns []string
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			origin = u.Host
		}
		patterns = append(patterns, origin)
	}
	return patterns
}

func (lr *ledgerRoutes) streamReceipts(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	updates, cancel := lr.seq.Subscribe(streamBuffer)
	defer cancel()

	last := cursor
	head := lr.seq.Sequence()
	if cursor < head {
		err := lr.seq.Receipts().Range(cursor+1, head, func(receipt *sequencer.Receipt) error {
			last = receipt.Sequence
			return writeReceipt(ctx, conn, receipt)
		})
		if err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case receipt, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusTryAgainLater, "subscriber too slow")
				return nil
			}
			if receipt.Sequence <= last {
				continue
			}
			if err := writeReceipt(ctx, conn, receipt); err != nil {
				return err
			}
			last = receipt.Sequence
		}
	}
}

func writeReceipt(ctx context.Context, conn *websocket.Conn, receipt *sequencer.Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
