package token

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/holiman/uint256"

	"vatchain/core/events"
	"vatchain/crypto"
	"vatchain/storage"
)

var (
	ErrNotAuthorized         = errors.New("token: not authorized")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrOverflow              = errors.New("token: overflow")
	ErrInvalidSymbol         = errors.New("token: symbol required")
)

// maxAllowance marks an approval that is never decremented.
var maxAllowance = new(uint256.Int).SetAllOne()

// Token is a fungible token ledger with balances, allowances and a ward set
// allowed to mint. It backs the collateral and stablecoin adapters.
type Token struct {
	mu      sync.Mutex
	symbol  string
	db      storage.Database
	emitter events.Emitter
	logger  *slog.Logger
}

// New opens the token identified by symbol over db. Records of different
// symbols never collide.
func New(symbol string, db storage.Database) (*Token, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if db == nil {
		db = storage.NewMemDB()
	}
	return &Token{symbol: symbol, db: db, emitter: events.NoopEmitter{}}, nil
}

func (t *Token) Symbol() string { return t.symbol }

func (t *Token) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	t.emitter = emitter
}

func (t *Token) SetLogger(logger *slog.Logger) { t.logger = logger }

func (t *Token) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

func (t *Token) key(kind string, addrs ...crypto.Address) []byte {
	parts := [][]byte{[]byte("token/" + t.symbol + "/" + kind)}
	for _, addr := range addrs {
		parts = append(parts, addr.Bytes())
	}
	return storage.HashKey(parts...)
}

func (t *Token) balanceKey(addr crypto.Address) []byte { return t.key("balance", addr) }

func (t *Token) allowanceKey(owner, spender crypto.Address) []byte {
	return t.key("allowance", owner, spender)
}

func (t *Token) supplyKey() []byte { return t.key("supply") }

func (t *Token) wardKey(addr crypto.Address) []byte { return t.key("ward", addr) }

func (t *Token) amount(key []byte) (*uint256.Int, error) {
	out := new(uint256.Int)
	if _, err := storage.LoadRLP(t.db, key, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Token) flag(key []byte) (bool, error) {
	var out bool
	if _, err := storage.LoadRLP(t.db, key, &out); err != nil {
		return false, err
	}
	return out, nil
}

// --- Reads ---

func (t *Token) BalanceOf(addr crypto.Address) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.amount(t.balanceKey(addr))
}

func (t *Token) Allowance(owner, spender crypto.Address) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.amount(t.allowanceKey(owner, spender))
}

func (t *Token) TotalSupply() (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.amount(t.supplyKey())
}

func (t *Token) Wards(addr crypto.Address) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flag(t.wardKey(addr))
}

// --- Administration ---

// Deploy grants the first ward. A second call fails with ErrNotAuthorized.
func (t *Token) Deploy(deployer crypto.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	deployedKey := t.key("deployed")
	deployed, err := t.flag(deployedKey)
	if err != nil {
		return err
	}
	if deployed {
		return ErrNotAuthorized
	}
	b := storage.NewRLPBatch(t.db)
	b.Put(deployedKey, true)
	b.Put(t.wardKey(deployer), true)
	return b.Write()
}

func (t *Token) Rely(caller, usr crypto.Address) error { return t.setWard(caller, usr, true) }

func (t *Token) Deny(caller, usr crypto.Address) error { return t.setWard(caller, usr, false) }

func (t *Token) setWard(caller, usr crypto.Address, value bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireWard(caller); err != nil {
		return err
	}
	b := storage.NewRLPBatch(t.db)
	b.Put(t.wardKey(usr), value)
	return b.Write()
}

func (t *Token) requireWard(caller crypto.Address) error {
	ok, err := t.flag(t.wardKey(caller))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// --- Transfers ---

func (t *Token) Approve(owner, spender crypto.Address, wad *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := storage.NewRLPBatch(t.db)
	b.Put(t.allowanceKey(owner, spender), orZero(wad))
	return b.Write()
}

func (t *Token) Transfer(caller, dst crypto.Address, wad *uint256.Int) error {
	return t.TransferFrom(caller, caller, dst, wad)
}

// TransferFrom moves wad from src to dst. A caller other than src spends its
// allowance unless the allowance is unlimited.
func (t *Token) TransferFrom(caller, src, dst crypto.Address, wad *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	wad = orZero(wad)
	b := storage.NewRLPBatch(t.db)
	if err := t.spendAllowance(b, caller, src, wad); err != nil {
		return err
	}
	srcBal, err := t.amount(t.balanceKey(src))
	if err != nil {
		return err
	}
	if srcBal.Lt(wad) {
		return ErrInsufficientBalance
	}
	srcBal.Sub(srcBal, wad)
	if src != dst {
		dstBal, err := t.amount(t.balanceKey(dst))
		if err != nil {
			return err
		}
		if _, overflow := dstBal.AddOverflow(dstBal, wad); overflow {
			return ErrOverflow
		}
		b.Put(t.balanceKey(src), srcBal)
		b.Put(t.balanceKey(dst), dstBal)
	}
	if err := b.Write(); err != nil {
		return err
	}
	t.emitter.Emit(events.TokenTransfer{Token: t.symbol, From: src, To: dst, Wad: wad.Clone()})
	return nil
}

func (t *Token) spendAllowance(b *storage.RLPBatch, caller, owner crypto.Address, wad *uint256.Int) error {
	if caller == owner {
		return nil
	}
	allowed, err := t.amount(t.allowanceKey(owner, caller))
	if err != nil {
		return err
	}
	if allowed.Eq(maxAllowance) {
		return nil
	}
	if allowed.Lt(wad) {
		return ErrInsufficientAllowance
	}
	b.Put(t.allowanceKey(owner, caller), new(uint256.Int).Sub(allowed, wad))
	return nil
}

// --- Supply ---

// Mint credits wad new tokens to usr. Only wards may mint.
func (t *Token) Mint(caller, usr crypto.Address, wad *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireWard(caller); err != nil {
		return err
	}
	wad = orZero(wad)
	supply, err := t.amount(t.supplyKey())
	if err != nil {
		return err
	}
	if _, overflow := supply.AddOverflow(supply, wad); overflow {
		return ErrOverflow
	}
	bal, err := t.amount(t.balanceKey(usr))
	if err != nil {
		return err
	}
	bal.Add(bal, wad)
	b := storage.NewRLPBatch(t.db)
	b.Put(t.supplyKey(), supply)
	b.Put(t.balanceKey(usr), bal)
	if err := b.Write(); err != nil {
		return err
	}
	t.log().Debug("token minted", "symbol", t.symbol, "usr", usr.String(), "wad", wad.Dec())
	t.emitter.Emit(events.TokenSupply{Token: t.symbol, Usr: usr, Total: supply, Delta: wad.Clone(), Reason: events.SupplyReasonMint})
	return nil
}

// Burn destroys wad of usr's tokens. A caller other than usr spends its
// allowance.
func (t *Token) Burn(caller, usr crypto.Address, wad *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	wad = orZero(wad)
	b := storage.NewRLPBatch(t.db)
	bal, err := t.amount(t.balanceKey(usr))
	if err != nil {
		return err
	}
	if bal.Lt(wad) {
		return ErrInsufficientBalance
	}
	if err := t.spendAllowance(b, caller, usr, wad); err != nil {
		return err
	}
	supply, err := t.amount(t.supplyKey())
	if err != nil {
		return err
	}
	bal.Sub(bal, wad)
	supply.Sub(supply, wad)
	b.Put(t.balanceKey(usr), bal)
	b.Put(t.supplyKey(), supply)
	if err := b.Write(); err != nil {
		return err
	}
	t.log().Debug("token burned", "symbol", t.symbol, "usr", usr.String(), "wad", wad.Dec())
	t.emitter.Emit(events.TokenSupply{Token: t.symbol, Usr: usr, Total: supply, Delta: wad.Clone(), Reason: events.SupplyReasonBurn})
	return nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
