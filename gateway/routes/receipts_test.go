package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"vatchain/core/sequencer"
	"vatchain/crypto"
	"vatchain/gateway/middleware"
	"vatchain/indexer"
)

var bob = crypto.LabelAddress("bob")

func TestHeadAndVerify(t *testing.T) {
	f := newAPI(t)
	res := f.tx(ali, `{"op":"hope","usr":"`+bob.String()+`"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var receipt sequencer.Receipt
	decode(t, res, &receipt)

	var head sequencer.Head
	res = f.do(http.MethodGet, "/v1/sequence", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &head)
	require.Equal(t, sequencer.Head{Sequence: 1, Digest: receipt.Digest}, head)

	res = f.do(http.MethodGet, "/v1/chain/verify", "", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	decode(t, res, &head)
	require.Equal(t, uint64(1), head.Sequence)
}

func TestReceiptQueries(t *testing.T) {
	res := newAPI(t).do(http.MethodGet, "/v1/receipts", "", nil)
	require.Equal(t, http.StatusNotImplemented, res.Code)

	ix, err := indexer.Open(filepath.Join(t.TempDir(), "receipts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	f := newAPIWithIndex(t, ix)
	require.Equal(t, http.StatusOK, f.tx(ali, `{"op":"hope","usr":"`+bob.String()+`"}`).Code)
	require.Equal(t, http.StatusOK, f.tx(bob, `{"op":"hope","usr":"`+ali.String()+`"}`).Code)
	_, err = ix.CatchUp(context.Background(), f.seq.Receipts())
	require.NoError(t, err)

	var body struct {
		Receipts []sequencer.Receipt `json:"receipts"`
	}
	res = f.do(http.MethodGet, "/v1/receipts?caller="+bob.Hex(), "", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	decode(t, res, &body)
	require.Len(t, body.Receipts, 1)
	require.Equal(t, uint64(2), body.Receipts[0].Sequence)

	for _, query := range []string{"caller=nope", "after=-1", "limit=x"} {
		res = f.do(http.MethodGet, "/v1/receipts?"+query, "", nil)
		require.Equal(t, http.StatusBadRequest, res.Code, query)
	}
}

func TestReceiptStream(t *testing.T) {
	f := newAPI(t)
	require.Equal(t, http.StatusOK, f.tx(ali, `{"op":"hope","usr":"`+bob.String()+`"}`).Code)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream?cursor=0"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() sequencer.Receipt {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var receipt sequencer.Receipt
		require.NoError(t, json.Unmarshal(data, &receipt))
		return receipt
	}
	require.Equal(t, uint64(1), read().Sequence)

	require.Equal(t, http.StatusOK, f.tx(bob, `{"op":"hope","usr":"`+ali.String()+`"}`).Code)
	live := read()
	require.Equal(t, uint64(2), live.Sequence)
	require.Equal(t, bob, live.Caller)
}

func TestReceiptStreamChecksOrigin(t *testing.T) {
	f := newAPIWithConfig(t, Config{CORS: middleware.CORSConfig{
		AllowedOrigins: []string{"https://app.vat.example"},
	}})
	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"

	dial := func(origin string) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn, res, err := websocket.Dial(ctx, url, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{origin}},
		})
		if err == nil {
			conn.Close(websocket.StatusNormalClosure, "")
		}
		return res, err
	}

	res, err := dial("https://evil.example")
	require.Error(t, err)
	require.NotNil(t, res)
	require.Equal(t, http.StatusForbidden, res.StatusCode)

	_, err = dial("https://app.vat.example")
	require.NoError(t, err)
	_, err = dial(srv.URL)
	require.NoError(t, err)
}

func TestReceiptStreamDefaultsToSameOrigin(t *testing.T) {
	f := newAPI(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	_, res, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://elsewhere.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, res)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestOriginPatterns(t *testing.T) {
	require.Equal(t, []string{"app.vat.example", "*.vat.example", "localhost:3000"},
		originPatterns([]string{"https://app.vat.example", " *.vat.example ", "http://localhost:3000/", ""}))
	require.Empty(t, originPatterns(nil))
}
