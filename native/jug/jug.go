package jug

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"vatchain/core/events"
	"vatchain/core/fixedpoint"
	"vatchain/crypto"
	nativecommon "vatchain/native/common"
	"vatchain/native/vat"
	"vatchain/storage"
)

const moduleName = "jug"

// ModuleName is the pause-guard identifier for the fee collector.
const ModuleName = moduleName

const (
	ParamDuty = "duty"
	ParamBase = "base"
	ParamVow  = "vow"
)

var (
	ErrNotAuthorized      = errors.New("jug: not authorized")
	ErrAlreadyInitialized = errors.New("jug: ilk already initialised")
	ErrUnknownIlk         = errors.New("jug: ilk not initialised")
	ErrRhoNotUpdated      = errors.New("jug: rho not updated")
	ErrInvalidNow         = errors.New("jug: clock behind last drip")
	ErrUnrecognizedParam  = errors.New("jug: unrecognized parameter")
)

var configKey = storage.HashKey([]byte("jug/config"))

type configRecord struct {
	Deployed bool
	Base     *uint256.Int
	Vow      crypto.Address
}

type ilkRecord struct {
	Duty *uint256.Int
	Rho  uint64
}

func ilkKey(ilk string) []byte { return storage.HashKey([]byte("jug/ilk/" + ilk)) }

func wardKey(addr crypto.Address) []byte {
	return storage.HashKey([]byte("jug/ward"), addr.Bytes())
}

// IlkState is the per-collateral fee configuration.
type IlkState struct {
	Duty *uint256.Int `json:"duty"`
	Rho  int64        `json:"rho"`
}

// Jug accrues stability fees: Drip compounds the per-second base + duty rate
// since the last drip into the ledger's accumulated rate and credits the
// collected fees to the vow address.
type Jug struct {
	mu      sync.Mutex
	vat     *vat.Engine
	db      storage.Database
	addr    crypto.Address
	now     func() time.Time
	emitter events.Emitter
	pauses  nativecommon.PauseView
	logger  *slog.Logger
}

// New constructs a fee collector over the ledger. The collector's Address must
// be a ward of the ledger for Drip to fold rates.
func New(v *vat.Engine, db storage.Database) *Jug {
	if db == nil {
		db = storage.NewMemDB()
	}
	return &Jug{
		vat:     v,
		db:      db,
		addr:    crypto.LabelAddress("jug"),
		now:     time.Now,
		emitter: events.NoopEmitter{},
	}
}

func (j *Jug) Address() crypto.Address { return j.addr }

// SetClock overrides the time source used for rho bookkeeping.
func (j *Jug) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	j.mu.Lock()
	j.now = now
	j.mu.Unlock()
}

func (j *Jug) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	j.emitter = emitter
}

func (j *Jug) SetPauses(p nativecommon.PauseView) { j.pauses = p }

func (j *Jug) SetLogger(logger *slog.Logger) { j.logger = logger }

func (j *Jug) log() *slog.Logger {
	if j.logger != nil {
		return j.logger
	}
	return slog.Default()
}

func (j *Jug) config() (*configRecord, error) {
	rec := new(configRecord)
	if _, err := storage.LoadRLP(j.db, configKey, rec); err != nil {
		return nil, err
	}
	if rec.Base == nil {
		rec.Base = new(uint256.Int)
	}
	return rec, nil
}

func (j *Jug) ilk(id string) (*ilkRecord, bool, error) {
	rec := new(ilkRecord)
	ok, err := storage.LoadRLP(j.db, ilkKey(id), rec)
	if err != nil {
		return nil, false, err
	}
	if rec.Duty == nil {
		rec.Duty = new(uint256.Int)
	}
	return rec, ok, nil
}

func (j *Jug) requireWard(caller crypto.Address) error {
	var ok bool
	if _, err := storage.LoadRLP(j.db, wardKey(caller), &ok); err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

func (j *Jug) unixNow() uint64 {
	now := j.now().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

// --- Reads ---

func (j *Jug) Ilk(id string) (*IlkState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, _, err := j.ilk(id)
	if err != nil {
		return nil, err
	}
	return &IlkState{Duty: rec.Duty, Rho: int64(rec.Rho)}, nil
}

func (j *Jug) Base() (*uint256.Int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cfg, err := j.config()
	if err != nil {
		return nil, err
	}
	return cfg.Base, nil
}

func (j *Jug) Vow() (crypto.Address, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cfg, err := j.config()
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.Vow, nil
}

func (j *Jug) Wards(addr crypto.Address) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.requireWard(addr); err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// --- Administration ---

func (j *Jug) Deploy(deployer crypto.Address) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	cfg, err := j.config()
	if err != nil {
		return err
	}
	if cfg.Deployed {
		return ErrNotAuthorized
	}
	cfg.Deployed = true
	b := storage.NewRLPBatch(j.db)
	b.Put(configKey, cfg)
	b.Put(wardKey(deployer), true)
	return b.Write()
}

func (j *Jug) Rely(caller, usr crypto.Address) error { return j.setWard(caller, usr, true) }

func (j *Jug) Deny(caller, usr crypto.Address) error { return j.setWard(caller, usr, false) }

func (j *Jug) setWard(caller, usr crypto.Address, value bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.requireWard(caller); err != nil {
		return err
	}
	b := storage.NewRLPBatch(j.db)
	b.Put(wardKey(usr), value)
	return b.Write()
}

// Init starts fee accrual for ilk at a duty of one (no fee) from now.
func (j *Jug) Init(caller crypto.Address, ilk string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.requireWard(caller); err != nil {
		return err
	}
	rec, _, err := j.ilk(ilk)
	if err != nil {
		return err
	}
	if !rec.Duty.IsZero() {
		return ErrAlreadyInitialized
	}
	rec.Duty = fixedpoint.RAY()
	rec.Rho = j.unixNow()
	b := storage.NewRLPBatch(j.db)
	b.Put(ilkKey(ilk), rec)
	if err := b.Write(); err != nil {
		return err
	}
	j.log().Info("jug ilk initialised", "ilk", ilk, "rho", rec.Rho)
	return nil
}

// FileDuty sets the per-second fee of ilk. Fees up to now must have been
// collected first.
func (j *Jug) FileDuty(caller crypto.Address, ilk, what string, data *uint256.Int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.requireWard(caller); err != nil {
		return err
	}
	rec, _, err := j.ilk(ilk)
	if err != nil {
		return err
	}
	if rec.Rho != j.unixNow() {
		return ErrRhoNotUpdated
	}
	if what != ParamDuty {
		return fmt.Errorf("%w: %s", ErrUnrecognizedParam, what)
	}
	if data == nil {
		data = new(uint256.Int)
	}
	rec.Duty = data.Clone()
	b := storage.NewRLPBatch(j.db)
	b.Put(ilkKey(ilk), rec)
	if err := b.Write(); err != nil {
		return err
	}
	j.log().Info("jug duty filed", "ilk", ilk, "duty", rec.Duty.Dec())
	return nil
}

// FileBase sets the per-second fee shared by every ilk.
func (j *Jug) FileBase(caller crypto.Address, what string, data *uint256.Int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.requireWard(caller); err != nil {
		return err
	}
	if what != ParamBase {
		return fmt.Errorf("%w: %s", ErrUnrecognizedParam, what)
	}
	cfg, err := j.config()
	if err != nil {
		return err
	}
	if data == nil {
		data = new(uint256.Int)
	}
	cfg.Base = data.Clone()
	b := storage.NewRLPBatch(j.db)
	b.Put(configKey, cfg)
	if err := b.Write(); err != nil {
		return err
	}
	j.log().Info("jug base filed", "base", cfg.Base.Dec())
	return nil
}

// FileVow sets the address credited with collected fees.
func (j *Jug) FileVow(caller crypto.Address, what string, data crypto.Address) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.requireWard(caller); err != nil {
		return err
	}
	if what != ParamVow {
		return fmt.Errorf("%w: %s", ErrUnrecognizedParam, what)
	}
	cfg, err := j.config()
	if err != nil {
		return err
	}
	cfg.Vow = data
	b := storage.NewRLPBatch(j.db)
	b.Put(configKey, cfg)
	if err := b.Write(); err != nil {
		return err
	}
	j.log().Info("jug vow filed", "vow", data.String())
	return nil
}

// Drip collects the fees accrued on ilk since the last drip and returns the
// new accumulated rate. Anyone may call it.
func (j *Jug) Drip(ilk string) (*uint256.Int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := nativecommon.Guard(j.pauses, moduleName); err != nil {
		return nil, err
	}
	rec, ok, err := j.ilk(ilk)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIlk, ilk)
	}
	now := j.unixNow()
	if now < rec.Rho {
		return nil, ErrInvalidNow
	}
	cfg, err := j.config()
	if err != nil {
		return nil, err
	}
	current, err := j.vat.Ilk(ilk)
	if err != nil {
		return nil, err
	}
	prev := current.Rate
	perSecond, err := fixedpoint.Add(cfg.Base, rec.Duty)
	if err != nil {
		return nil, err
	}
	factor, err := fixedpoint.RPow(perSecond, now-rec.Rho, fixedpoint.RAY())
	if err != nil {
		return nil, err
	}
	rate, err := fixedpoint.RMul(factor, prev)
	if err != nil {
		return nil, err
	}
	delta, err := fixedpoint.Diff(rate, prev)
	if err != nil {
		return nil, err
	}
	if err := j.vat.Fold(j.addr, ilk, cfg.Vow, delta); err != nil {
		return nil, err
	}
	rec.Rho = now
	b := storage.NewRLPBatch(j.db)
	b.Put(ilkKey(ilk), rec)
	if err := b.Write(); err != nil {
		return nil, err
	}
	j.log().Debug("jug drip", "ilk", ilk, "rate", rate.Dec(), "rho", now)
	j.emitter.Emit(events.JugDrip{Ilk: ilk, Rate: rate.Clone(), Rho: int64(now)})
	return rate, nil
}
