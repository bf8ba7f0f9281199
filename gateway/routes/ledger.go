package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"vatchain/core/fixedpoint"
	"vatchain/core/sequencer"
	"vatchain/crypto"
	"vatchain/gateway/middleware"
	"vatchain/indexer"
	nativecommon "vatchain/native/common"
	"vatchain/native/join"
	"vatchain/native/jug"
	"vatchain/native/token"
	"vatchain/native/vat"
)

const txRequestLimit = 64 << 10 // 64 KiB

var errMissingCaller = errors.New("caller not authenticated")

type ledgerRoutes struct {
	seq     *sequencer.Sequencer
	indexer *indexer.Indexer
	logger  *slog.Logger
	// origins are the host patterns allowed to open the receipt stream in
	// addition to the serving host.
	origins []string
}

func (lr *ledgerRoutes) log() *slog.Logger {
	if lr.logger != nil {
		return lr.logger
	}
	return slog.Default()
}

func (lr *ledgerRoutes) mountReads(r chi.Router) {
	r.Get("/ops", lr.ops)
	r.Get("/sequence", lr.sequence)
	r.Get("/sequence/{n}", lr.receiptAt)
	r.Get("/receipts", lr.queryReceipts)
	r.Get("/receipts/{id}", lr.receipt)
	r.Get("/chain/verify", lr.verifyChain)
	r.Get("/stream", lr.stream)

	r.Get("/vat/globals", lr.globals)
	r.Get("/vat/root", lr.root)
	r.Get("/vat/export", lr.export)
	r.Get("/vat/ilks", lr.ilks)
	r.Get("/vat/ilks/{ilk}", lr.ilk)
	r.Get("/vat/urns/{ilk}/{addr}", lr.urn)
	r.Get("/vat/tab/{ilk}/{addr}", lr.tab)
	r.Get("/vat/gem/{ilk}/{addr}", lr.gem)
	r.Get("/vat/dai/{addr}", lr.dai)
	r.Get("/vat/sin/{addr}", lr.sin)
	r.Get("/vat/wards/{addr}", lr.wards)
	r.Get("/vat/can/{owner}/{delegate}", lr.can)

	r.Get("/jug/ilks/{ilk}", lr.jugIlk)

	r.Get("/tokens/{symbol}/supply", lr.tokenSupply)
	r.Get("/tokens/{symbol}/balances/{addr}", lr.tokenBalance)
	r.Get("/tokens/{symbol}/allowances/{owner}/{spender}", lr.tokenAllowance)
}

func (lr *ledgerRoutes) ledger() *sequencer.Ledger { return lr.seq.Ledger() }

// --- Transactions ---

func (lr *ledgerRoutes) submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errMissingCaller)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, txRequestLimit))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("read request body: %w", err))
		return
	}
	if len(data) == 0 {
		writeBadRequest(w, errors.New("request body is empty"))
		return
	}
	tx, err := sequencer.DecodeTx(data)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	receipt, err := lr.seq.Submit(r.Context(), caller, tx)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (lr *ledgerRoutes) ops(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"ops": sequencer.Ops()})
}

func (lr *ledgerRoutes) sequence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, lr.seq.Head())
}

func (lr *ledgerRoutes) receiptAt(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "n"), 10, 64)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid sequence: %w", err))
		return
	}
	receipt, err := lr.seq.ReceiptAt(n)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (lr *ledgerRoutes) receipt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid receipt id: %w", err))
		return
	}
	receipt, err := lr.seq.Receipt(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// --- Ledger reads ---

func (lr *ledgerRoutes) globals(w http.ResponseWriter, r *http.Request) {
	respond(w)(lr.ledger().Vat.Globals())
}

func (lr *ledgerRoutes) root(w http.ResponseWriter, r *http.Request) {
	root, err := lr.ledger().Vat.Root()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root": root.Hex()})
}

func (lr *ledgerRoutes) export(w http.ResponseWriter, r *http.Request) {
	respond(w)(lr.ledger().Vat.Export())
}

func (lr *ledgerRoutes) ilks(w http.ResponseWriter, r *http.Request) {
	ids, err := lr.ledger().Vat.Ilks()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ilks": ids})
}

func (lr *ledgerRoutes) ilk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ilk")
	ilk, err := lr.ledger().Vat.Ilk(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if !ilk.Initialized() {
		writeLedgerError(w, fmt.Errorf("%w: %s", vat.ErrUnknownIlk, id))
		return
	}
	writeJSON(w, http.StatusOK, ilk)
}

func (lr *ledgerRoutes) urn(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	respond(w)(lr.ledger().Vat.Urn(chi.URLParam(r, "ilk"), addr))
}

func (lr *ledgerRoutes) tab(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	amount(w, fixedpoint.RadDecimals)(lr.ledger().Vat.Tab(chi.URLParam(r, "ilk"), addr))
}

func (lr *ledgerRoutes) gem(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	amount(w, fixedpoint.WadDecimals)(lr.ledger().Vat.Gem(chi.URLParam(r, "ilk"), addr))
}

func (lr *ledgerRoutes) dai(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	amount(w, fixedpoint.RadDecimals)(lr.ledger().Vat.Dai(addr))
}

func (lr *ledgerRoutes) sin(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	amount(w, fixedpoint.RadDecimals)(lr.ledger().Vat.Sin(addr))
}

func (lr *ledgerRoutes) wards(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	ward, err := lr.ledger().Vat.Wards(addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ward": ward})
}

func (lr *ledgerRoutes) can(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	delegate, ok := addressParam(w, r, "delegate")
	if !ok {
		return
	}
	can, err := lr.ledger().Vat.Can(owner, delegate)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"can": can})
}

// --- Fees ---

type jugIlkResponse struct {
	*jug.IlkState
	Base *uint256.Int   `json:"base"`
	Vow  crypto.Address `json:"vow"`
}

func (lr *ledgerRoutes) jugIlk(w http.ResponseWriter, r *http.Request) {
	fees := lr.ledger().Jug
	state, err := fees.Ilk(chi.URLParam(r, "ilk"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	base, err := fees.Base()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	vow, err := fees.Vow()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jugIlkResponse{IlkState: state, Base: base, Vow: vow})
}

// --- Tokens ---

func (lr *ledgerRoutes) token(w http.ResponseWriter, r *http.Request) (*token.Token, bool) {
	t, err := lr.ledger().Token(chi.URLParam(r, "symbol"))
	if err != nil {
		writeLedgerError(w, err)
		return nil, false
	}
	return t, true
}

func (lr *ledgerRoutes) tokenSupply(w http.ResponseWriter, r *http.Request) {
	t, ok := lr.token(w, r)
	if !ok {
		return
	}
	amount(w, fixedpoint.WadDecimals)(t.TotalSupply())
}

func (lr *ledgerRoutes) tokenBalance(w http.ResponseWriter, r *http.Request) {
	t, ok := lr.token(w, r)
	if !ok {
		return
	}
	addr, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	amount(w, fixedpoint.WadDecimals)(t.BalanceOf(addr))
}

func (lr *ledgerRoutes) tokenAllowance(w http.ResponseWriter, r *http.Request) {
	t, ok := lr.token(w, r)
	if !ok {
		return
	}
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := addressParam(w, r, "spender")
	if !ok {
		return
	}
	amount(w, fixedpoint.WadDecimals)(t.Allowance(owner, spender))
}

// --- Helpers ---

func addressParam(w http.ResponseWriter, r *http.Request, name string) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, name))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid %s: %w", name, err))
		return crypto.Address{}, false
	}
	return addr, true
}

type amountResponse struct {
	Amount  *uint256.Int `json:"amount"`
	Decimal string       `json:"decimal"`
}

// amount renders an integer together with its value in whole units.
func amount(w http.ResponseWriter, decimals int) func(*uint256.Int, error) {
	return func(v *uint256.Int, err error) {
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, amountResponse{Amount: v, Decimal: fixedpoint.FormatUnits(v, decimals)})
	}
}

func respond(w http.ResponseWriter) func(interface{}, error) {
	return func(v interface{}, err error) {
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		writeInternalError(w, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

var (
	forbidden = []error{vat.ErrNotAuthorized, jug.ErrNotAuthorized, join.ErrNotAuthorized, token.ErrNotAuthorized}
	notFound  = []error{vat.ErrUnknownIlk, jug.ErrUnknownIlk, sequencer.ErrReceiptNotFound, sequencer.ErrUnknownToken}
	conflict  = []error{
		vat.ErrAlreadyInitialized, vat.ErrAlreadyDeployed, vat.ErrSystemCaged,
		jug.ErrAlreadyInitialized, jug.ErrRhoNotUpdated, jug.ErrInvalidNow,
		join.ErrNotLive, nativecommon.ErrModulePaused, sequencer.ErrDigestMismatch,
		sequencer.ErrSymbolTaken,
	}
	badRequest = []error{sequencer.ErrInvalidTx, sequencer.ErrUnknownOp}
	rejected   = []error{
		vat.ErrCeilingExceeded, vat.ErrNotSafe, vat.ErrBelowDust, vat.ErrInsufficientBalance,
		vat.ErrUnrecognizedParam, vat.ErrInvalidIlk,
		fixedpoint.ErrOverflow, fixedpoint.ErrUnderflow, fixedpoint.ErrSignMismatch, fixedpoint.ErrInvalidAmount,
		jug.ErrUnrecognizedParam, join.ErrOverflow,
		token.ErrInsufficientBalance, token.ErrInsufficientAllowance, token.ErrOverflow, token.ErrInvalidSymbol,
	}
)

func statusFor(err error) int {
	matches := func(targets []error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
	switch {
	case matches(forbidden):
		return http.StatusForbidden
	case matches(notFound):
		return http.StatusNotFound
	case matches(conflict):
		return http.StatusConflict
	case matches(badRequest):
		return http.StatusBadRequest
	case errors.Is(err, sequencer.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case matches(rejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeLedgerError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusInternalServerError, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		payload = []byte(`{"error":"` + http.StatusText(status) + `"}`)
	}
	_, _ = w.Write(payload)
}
