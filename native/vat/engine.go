package vat

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vatchain/core/events"
	"vatchain/core/fixedpoint"
	"vatchain/crypto"
	nativecommon "vatchain/native/common"
)

const moduleName = "vat"

// ModuleName is the pause-guard identifier for the ledger.
const ModuleName = moduleName

// Engine is the ledger state machine. Every mutating operation runs against a
// staged overlay of the state and is committed only when all of its checks
// pass, so failures never leave partial writes. Operations are serialised;
// reads share a lock and observe the last committed state.
type Engine struct {
	mu      sync.RWMutex
	state   State
	emitter events.Emitter
	pauses  nativecommon.PauseView
	logger  *slog.Logger
}

// NewEngine constructs an engine over the supplied state.
func NewEngine(state State) *Engine {
	return &Engine{state: state, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

// SetEmitter configures the sink for ledger events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	e.logger = logger
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// apply runs fn against a fresh overlay and commits the staged writes when fn
// succeeds. Events are emitted only after a successful commit.
func (e *Engine) apply(op string, fn func(tx *overlay) ([]events.Event, error)) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ErrNilState
	}
	tx := newOverlay(e.state)
	emitted, err := fn(tx)
	if err != nil {
		e.log().Debug("vat operation rejected", "op", op, "error", err)
		return err
	}
	if err := e.state.Commit(tx.cs); err != nil {
		return fmt.Errorf("vat: commit %s: %w", op, err)
	}
	for _, evt := range emitted {
		e.emitter.Emit(evt)
	}
	return nil
}

func (e *Engine) guard() error {
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) read(fn func(s State) error) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return ErrNilState
	}
	return fn(e.state)
}

func requireWard(tx *overlay, caller crypto.Address) error {
	ok, err := tx.ward(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

func requireLive(tx *overlay) (*Globals, error) {
	g, err := tx.globals()
	if err != nil {
		return nil, err
	}
	if !g.Live {
		return nil, ErrSystemCaged
	}
	return g, nil
}

func requireIlk(tx *overlay, id string) (*Ilk, error) {
	ilk, err := tx.ilk(id)
	if err != nil {
		return nil, err
	}
	if !ilk.Initialized() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIlk, id)
	}
	return ilk, nil
}

// wish reports whether actor may act on behalf of owner.
func wish(tx *overlay, owner, actor crypto.Address) (bool, error) {
	if owner == actor {
		return true, nil
	}
	return tx.can(Delegation{Owner: owner, Delegate: actor})
}

// debit subtracts amount from balance, mapping underflow to
// ErrInsufficientBalance.
func debit(balance, amount *uint256.Int) (*uint256.Int, error) {
	out, err := fixedpoint.Sub(balance, amount)
	if err != nil {
		return nil, ErrInsufficientBalance
	}
	return out, nil
}

// applyBalance applies a signed delta to a balance, mapping underflow to
// ErrInsufficientBalance.
func applyBalance(balance *uint256.Int, delta fixedpoint.Delta) (*uint256.Int, error) {
	out, err := fixedpoint.Apply(balance, delta)
	if err != nil {
		if delta.IsNeg() {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}
	return out, nil
}

// --- Reads ---

// Globals returns the system-wide totals and switches.
func (e *Engine) Globals() (*Globals, error) {
	var out *Globals
	err := e.read(func(s State) (err error) {
		out, err = s.Globals()
		return err
	})
	return out, err
}

func (e *Engine) Debt() (*uint256.Int, error) {
	g, err := e.Globals()
	if err != nil {
		return nil, err
	}
	return g.Debt, nil
}

func (e *Engine) Vice() (*uint256.Int, error) {
	g, err := e.Globals()
	if err != nil {
		return nil, err
	}
	return g.Vice, nil
}

// Line returns the global debt ceiling.
func (e *Engine) Line() (*uint256.Int, error) {
	g, err := e.Globals()
	if err != nil {
		return nil, err
	}
	return g.Line, nil
}

func (e *Engine) Live() (bool, error) {
	g, err := e.Globals()
	if err != nil {
		return false, err
	}
	return g.Live, nil
}

// Ilk returns the collateral type record. Unregistered identifiers read as a
// zero record with a zero rate.
func (e *Engine) Ilk(id string) (*Ilk, error) {
	var out *Ilk
	err := e.read(func(s State) (err error) {
		out, err = s.Ilk(id)
		return err
	})
	return out, err
}

// Ilks lists the registered collateral identifiers in lexical order.
func (e *Engine) Ilks() ([]string, error) {
	var out []string
	err := e.read(func(s State) (err error) {
		out, err = s.IlkIDs()
		return err
	})
	return out, err
}

func (e *Engine) Urn(ilk string, addr crypto.Address) (*Urn, error) {
	var out *Urn
	err := e.read(func(s State) (err error) {
		out, err = s.Urn(PositionKey{Ilk: ilk, Addr: addr})
		return err
	})
	return out, err
}

func (e *Engine) Gem(ilk string, addr crypto.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.read(func(s State) (err error) {
		out, err = s.Gem(PositionKey{Ilk: ilk, Addr: addr})
		return err
	})
	return out, err
}

func (e *Engine) Dai(addr crypto.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.read(func(s State) (err error) {
		out, err = s.Dai(addr)
		return err
	})
	return out, err
}

func (e *Engine) Sin(addr crypto.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.read(func(s State) (err error) {
		out, err = s.Sin(addr)
		return err
	})
	return out, err
}

// Wards reports whether addr holds administrative rights.
func (e *Engine) Wards(addr crypto.Address) (bool, error) {
	var out bool
	err := e.read(func(s State) (err error) {
		out, err = s.Ward(addr)
		return err
	})
	return out, err
}

// Can reports whether owner has delegated to delegate.
func (e *Engine) Can(owner, delegate crypto.Address) (bool, error) {
	var out bool
	err := e.read(func(s State) (err error) {
		out, err = s.Can(Delegation{Owner: owner, Delegate: delegate})
		return err
	})
	return out, err
}

// CanModify reports whether actor may act on owner's balances and positions.
func (e *Engine) CanModify(owner, actor crypto.Address) (bool, error) {
	if owner == actor {
		return true, nil
	}
	return e.Can(owner, actor)
}

// Tab returns the position's debt in stablecoin units: art * rate.
func (e *Engine) Tab(ilk string, addr crypto.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.read(func(s State) error {
		i, err := s.Ilk(ilk)
		if err != nil {
			return err
		}
		u, err := s.Urn(PositionKey{Ilk: ilk, Addr: addr})
		if err != nil {
			return err
		}
		out, err = fixedpoint.Mul(u.Art, i.Rate)
		return err
	})
	return out, err
}

// Export returns a consistent dump of the entire ledger.
func (e *Engine) Export() (*Snapshot, error) {
	var out *Snapshot
	err := e.read(func(s State) (err error) {
		out, err = Export(s)
		return err
	})
	return out, err
}

// Root returns the state commitment for the current ledger.
func (e *Engine) Root() (common.Hash, error) {
	snap, err := e.Export()
	if err != nil {
		return common.Hash{}, err
	}
	return snap.Root()
}
