package join

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"

	"vatchain/core/events"
	"vatchain/core/fixedpoint"
	"vatchain/crypto"
	nativecommon "vatchain/native/common"
	"vatchain/native/token"
	"vatchain/native/vat"
	"vatchain/storage"
)

const moduleName = "join"

// ModuleName is the pause-guard identifier shared by every adapter.
const ModuleName = moduleName

// adapter carries the wiring common to the collateral and stablecoin
// adapters.
type adapter struct {
	mu      sync.Mutex
	auth    *authority
	addr    crypto.Address
	vat     *vat.Engine
	emitter events.Emitter
	pauses  nativecommon.PauseView
	logger  *slog.Logger
}

func (a *adapter) init(name string, v *vat.Engine, db storage.Database) {
	a.auth = newAuthority(name, db)
	a.addr = crypto.LabelAddress("join/" + name)
	a.vat = v
	a.emitter = events.NoopEmitter{}
}

// Address is the account the adapter holds tokens and ledger balances under.
// It must be a ward of the ledger (collateral) or of the token (stablecoin).
func (a *adapter) Address() crypto.Address { return a.addr }

func (a *adapter) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	a.emitter = emitter
}

func (a *adapter) SetPauses(p nativecommon.PauseView) { a.pauses = p }

func (a *adapter) SetLogger(logger *slog.Logger) { a.logger = logger }

func (a *adapter) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

func (a *adapter) Deploy(deployer crypto.Address) error { return a.auth.deploy(deployer) }

func (a *adapter) Rely(caller, usr crypto.Address) error { return a.auth.setWard(caller, usr, true) }

func (a *adapter) Deny(caller, usr crypto.Address) error { return a.auth.setWard(caller, usr, false) }

func (a *adapter) Wards(addr crypto.Address) (bool, error) { return a.auth.ward(addr) }

// Cage permanently disables the live-gated direction of the adapter.
func (a *adapter) Cage(caller crypto.Address) error {
	if err := a.auth.cage(caller); err != nil {
		return err
	}
	a.log().Info("join adapter caged", "adapter", a.auth.name, "caller", caller.String())
	return nil
}

func (a *adapter) Live() (bool, error) { return a.auth.live() }

// requireVatLive rejects deposits once the ledger itself is caged,
// independently of the adapter's own cage.
func (a *adapter) requireVatLive() error {
	live, err := a.vat.Live()
	if err != nil {
		return err
	}
	if !live {
		return vat.ErrSystemCaged
	}
	return nil
}

// rollback reports the original failure together with any failed
// compensation step.
func rollback(err error, undo ...error) error {
	if undoErr := errors.Join(undo...); undoErr != nil {
		return fmt.Errorf("%w (rollback failed: %v)", err, undoErr)
	}
	return err
}

// GemJoin moves collateral tokens into and out of the ledger's gem balances
// for one collateral type.
type GemJoin struct {
	adapter
	ilk string
	gem *token.Token
}

func NewGemJoin(v *vat.Engine, ilk string, gem *token.Token, db storage.Database) *GemJoin {
	j := &GemJoin{ilk: ilk, gem: gem}
	j.init("gem/"+ilk, v, db)
	return j
}

func (j *GemJoin) Ilk() string { return j.ilk }

// Join pulls wad tokens from the caller and credits usr's gem balance.
func (j *GemJoin) Join(caller, usr crypto.Address, wad *uint256.Int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := nativecommon.Guard(j.pauses, moduleName); err != nil {
		return err
	}
	if err := j.auth.requireLive(); err != nil {
		return err
	}
	if err := j.requireVatLive(); err != nil {
		return err
	}
	wad = orZero(wad)
	delta, err := wadDelta(wad)
	if err != nil {
		return err
	}
	allowance, err := j.gem.Allowance(caller, j.addr)
	if err != nil {
		return err
	}
	if err := j.gem.TransferFrom(j.addr, caller, j.addr, wad); err != nil {
		return err
	}
	if err := j.vat.Slip(j.addr, j.ilk, usr, delta); err != nil {
		return rollback(err,
			j.gem.Transfer(j.addr, caller, wad),
			j.gem.Approve(caller, j.addr, allowance),
		)
	}
	j.emitter.Emit(events.AdapterTransfer{Ilk: j.ilk, Direction: events.JoinDirectionIn, Usr: usr, Wad: wad.Clone()})
	return nil
}

// Exit debits the caller's gem balance and sends wad tokens to usr.
func (j *GemJoin) Exit(caller, usr crypto.Address, wad *uint256.Int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := nativecommon.Guard(j.pauses, moduleName); err != nil {
		return err
	}
	wad = orZero(wad)
	delta, err := wadDelta(wad)
	if err != nil {
		return err
	}
	out, err := delta.Negate()
	if err != nil {
		return ErrOverflow
	}
	if err := j.vat.Slip(j.addr, j.ilk, caller, out); err != nil {
		return err
	}
	if err := j.gem.Transfer(j.addr, usr, wad); err != nil {
		return rollback(err, j.vat.Slip(j.addr, j.ilk, caller, delta))
	}
	j.emitter.Emit(events.AdapterTransfer{Ilk: j.ilk, Direction: events.JoinDirectionOut, Usr: usr, Wad: wad.Clone()})
	return nil
}

// DaiJoin converts between internal stablecoin balances (rad) and the
// stablecoin token (wad) at one token per RAY of internal balance.
type DaiJoin struct {
	adapter
	dai *token.Token
}

func NewDaiJoin(v *vat.Engine, dai *token.Token, db storage.Database) *DaiJoin {
	j := &DaiJoin{dai: dai}
	j.init("dai", v, db)
	return j
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

func wadDelta(wad *uint256.Int) (fixedpoint.Delta, error) {
	delta, err := fixedpoint.NewDelta(false, wad)
	if err != nil {
		return fixedpoint.Delta{}, ErrOverflow
	}
	return delta, nil
}

func radOf(wad *uint256.Int) (*uint256.Int, error) {
	rad, err := fixedpoint.Mul(wad, fixedpoint.RAY())
	if err != nil {
		return nil, ErrOverflow
	}
	return rad, nil
}

// Join burns wad tokens held by the caller and credits usr with wad * RAY of
// internal stablecoin. The caller must have approved the adapter.
func (j *DaiJoin) Join(caller, usr crypto.Address, wad *uint256.Int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := nativecommon.Guard(j.pauses, moduleName); err != nil {
		return err
	}
	if err := j.requireVatLive(); err != nil {
		return err
	}
	wad = orZero(wad)
	rad, err := radOf(wad)
	if err != nil {
		return err
	}
	allowance, err := j.dai.Allowance(caller, j.addr)
	if err != nil {
		return err
	}
	if err := j.dai.Burn(j.addr, caller, wad); err != nil {
		return err
	}
	if err := j.vat.Move(j.addr, j.addr, usr, rad); err != nil {
		return rollback(err,
			j.dai.Mint(j.addr, caller, wad),
			j.dai.Approve(caller, j.addr, allowance),
		)
	}
	j.emitter.Emit(events.AdapterTransfer{Direction: events.JoinDirectionIn, Usr: usr, Wad: wad.Clone()})
	return nil
}

// Exit moves wad * RAY of the caller's internal stablecoin to the adapter and
// mints wad tokens to usr. The caller must have delegated to the adapter.
func (j *DaiJoin) Exit(caller, usr crypto.Address, wad *uint256.Int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := nativecommon.Guard(j.pauses, moduleName); err != nil {
		return err
	}
	if err := j.auth.requireLive(); err != nil {
		return err
	}
	wad = orZero(wad)
	rad, err := radOf(wad)
	if err != nil {
		return err
	}
	if err := j.vat.Move(j.addr, caller, j.addr, rad); err != nil {
		return err
	}
	if err := j.dai.Mint(j.addr, usr, wad); err != nil {
		return rollback(err, j.vat.Move(j.addr, j.addr, caller, rad))
	}
	j.emitter.Emit(events.AdapterTransfer{Direction: events.JoinDirectionOut, Usr: usr, Wad: wad.Clone()})
	return nil
}
