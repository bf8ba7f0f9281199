package token

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"vatchain/core/events"
	"vatchain/core/fixedpoint"
	"vatchain/crypto"
	"vatchain/storage"
)

var (
	owner   = crypto.LabelAddress("owner")
	alice   = crypto.LabelAddress("alice")
	spender = crypto.LabelAddress("spender")
)

func newToken(t *testing.T) (*Token, *events.Buffer) {
	t.Helper()
	tok, err := New("gem", storage.NewMemDB())
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	buf := &events.Buffer{}
	tok.SetEmitter(buf)
	if err := tok.Deploy(owner); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	return tok, buf
}

func balance(t *testing.T, tok *Token, addr crypto.Address) *uint256.Int {
	t.Helper()
	bal, err := tok.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestNewRejectsEmptySymbol(t *testing.T) {
	if _, err := New("  ", nil); !errors.Is(err, ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}
}

func TestMintRequiresWard(t *testing.T) {
	tok, buf := newToken(t)
	if err := tok.Mint(alice, alice, fixedpoint.Wad(1)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := tok.Mint(owner, alice, fixedpoint.Wad(20)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := balance(t, tok, alice); !got.Eq(fixedpoint.Wad(20)) {
		t.Fatalf("unexpected balance %s", got.Dec())
	}
	supply, _ := tok.TotalSupply()
	if !supply.Eq(fixedpoint.Wad(20)) {
		t.Fatalf("unexpected supply %s", supply.Dec())
	}
	evts := buf.Drain()
	if len(evts) != 1 || evts[0].EventType() != events.TypeTokenSupply {
		t.Fatalf("expected one supply event, got %v", evts)
	}
	if err := tok.Deploy(alice); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("second deploy should fail, got %v", err)
	}
}

func TestTransferFromAllowance(t *testing.T) {
	tok, buf := newToken(t)
	if err := tok.Mint(owner, alice, fixedpoint.Wad(20)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tok.TransferFrom(spender, alice, spender, fixedpoint.Wad(1)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := tok.Approve(alice, spender, fixedpoint.Wad(5)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := tok.TransferFrom(spender, alice, spender, fixedpoint.Wad(3)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	left, _ := tok.Allowance(alice, spender)
	if !left.Eq(fixedpoint.Wad(2)) {
		t.Fatalf("allowance not decremented: %s", left.Dec())
	}
	if got := balance(t, tok, spender); !got.Eq(fixedpoint.Wad(3)) {
		t.Fatalf("unexpected spender balance %s", got.Dec())
	}
	evts := buf.Drain()
	transfer, ok := evts[len(evts)-1].(events.TokenTransfer)
	if !ok || transfer.From != alice || transfer.To != spender || !transfer.Wad.Eq(fixedpoint.Wad(3)) {
		t.Fatalf("unexpected transfer event %#v", evts[len(evts)-1])
	}
	if attrs := transfer.Event().Attributes; attrs["token"] != "GEM" || attrs["wad"] != fixedpoint.Wad(3).Dec() {
		t.Fatalf("unexpected rendered attributes %v", attrs)
	}

	if err := tok.Approve(alice, spender, new(uint256.Int).SetAllOne()); err != nil {
		t.Fatalf("approve max: %v", err)
	}
	if err := tok.TransferFrom(spender, alice, spender, fixedpoint.Wad(10)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	left, _ = tok.Allowance(alice, spender)
	if !left.Eq(maxAllowance) {
		t.Fatalf("unlimited allowance should not decrease")
	}
	if err := tok.Transfer(alice, spender, fixedpoint.Wad(8)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestBurn(t *testing.T) {
	tok, buf := newToken(t)
	if err := tok.Mint(owner, alice, fixedpoint.Wad(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	buf.Drain()
	if err := tok.Burn(spender, alice, fixedpoint.Wad(1)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := tok.Approve(alice, spender, fixedpoint.Wad(4)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := tok.Burn(spender, alice, fixedpoint.Wad(4)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := tok.Burn(alice, alice, fixedpoint.Wad(7)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := balance(t, tok, alice); !got.Eq(fixedpoint.Wad(6)) {
		t.Fatalf("unexpected balance %s", got.Dec())
	}
	supply, _ := tok.TotalSupply()
	if !supply.Eq(fixedpoint.Wad(6)) {
		t.Fatalf("unexpected supply %s", supply.Dec())
	}
	evts := buf.Drain()
	if len(evts) != 1 {
		t.Fatalf("expected one burn event, got %d", len(evts))
	}
	if supplyEvt, ok := evts[0].(events.TokenSupply); !ok || supplyEvt.Reason != events.SupplyReasonBurn {
		t.Fatalf("unexpected event %#v", evts[0])
	}
}

func TestSymbolsAreIsolated(t *testing.T) {
	db := storage.NewMemDB()
	gem, _ := New("gem", db)
	dai, _ := New("dai", db)
	if err := gem.Deploy(owner); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if err := gem.Mint(owner, alice, fixedpoint.Wad(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := balance(t, dai, alice); !got.IsZero() {
		t.Fatalf("balances leaked across symbols")
	}
	if ok, _ := dai.Wards(owner); ok {
		t.Fatalf("wards leaked across symbols")
	}
}
