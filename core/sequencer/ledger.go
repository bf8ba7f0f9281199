package sequencer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"vatchain/config"
	"vatchain/core/events"
	"vatchain/crypto"
	nativecommon "vatchain/native/common"
	"vatchain/native/join"
	"vatchain/native/jug"
	"vatchain/native/token"
	"vatchain/native/vat"
	"vatchain/storage"
)

// DaiSymbol names the stablecoin token.
const DaiSymbol = "DAI"

// Options configures the modules opened by OpenLedger.
type Options struct {
	Emitter events.Emitter
	Pauses  nativecommon.PauseView
	Logger  *slog.Logger
	// Clock drives fee accrual. Defaults to time.Now.
	Clock func() time.Time
}

// Collateral pairs a collateral token with its adapter.
type Collateral struct {
	Token *token.Token
	Join  *join.GemJoin
}

// Ledger wires the ledger engine, the fee collector, the stablecoin and the
// per-collateral adapters over one store.
type Ledger struct {
	Vat     *vat.Engine
	Jug     *jug.Jug
	Dai     *token.Token
	DaiJoin *join.DaiJoin

	db      *storage.Journal
	buffer  *events.Buffer
	emitter events.Emitter
	pauses  nativecommon.PauseView
	logger  *slog.Logger

	mu   sync.RWMutex
	gems map[string]*Collateral
}

// OpenLedger opens every module over db and reattaches the adapters of the
// collateral types already registered.
func OpenLedger(db storage.Database, opts Options) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("sequencer: database required")
	}
	journal := storage.NewJournal(db)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := &events.Buffer{}
	emitter := events.Fanout{buffer}
	if opts.Emitter != nil {
		emitter = append(emitter, opts.Emitter)
	}

	engine := vat.NewEngine(vat.NewKVState(journal))
	engine.SetEmitter(emitter)
	engine.SetPauses(opts.Pauses)
	engine.SetLogger(logger.With("module", vat.ModuleName))

	fees := jug.New(engine, journal)
	fees.SetEmitter(emitter)
	fees.SetPauses(opts.Pauses)
	fees.SetLogger(logger.With("module", jug.ModuleName))
	if opts.Clock != nil {
		fees.SetClock(opts.Clock)
	}

	dai, err := token.New(DaiSymbol, journal)
	if err != nil {
		return nil, err
	}
	dai.SetEmitter(emitter)
	dai.SetLogger(logger.With("module", "token"))

	daiJoin := join.NewDaiJoin(engine, dai, journal)
	daiJoin.SetEmitter(emitter)
	daiJoin.SetPauses(opts.Pauses)
	daiJoin.SetLogger(logger.With("module", join.ModuleName))

	l := &Ledger{
		Vat:     engine,
		Jug:     fees,
		Dai:     dai,
		DaiJoin: daiJoin,
		db:      journal,
		buffer:  buffer,
		emitter: emitter,
		pauses:  opts.Pauses,
		logger:  logger,
		gems:    make(map[string]*Collateral),
	}
	ilks, err := engine.Ilks()
	if err != nil {
		return nil, err
	}
	for _, ilk := range ilks {
		if _, err := l.openCollateral(ilk); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) openCollateral(ilk string) (*Collateral, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.gems[ilk]; ok {
		return c, nil
	}
	gem, err := token.New(ilk, l.db)
	if err != nil {
		return nil, err
	}
	gem.SetEmitter(l.emitter)
	gem.SetLogger(l.logger.With("module", "token"))
	adapter := join.NewGemJoin(l.Vat, ilk, gem, l.db)
	adapter.SetEmitter(l.emitter)
	adapter.SetPauses(l.pauses)
	adapter.SetLogger(l.logger.With("module", join.ModuleName))
	c := &Collateral{Token: gem, Join: adapter}
	l.gems[ilk] = c
	return c, nil
}

// Collateral returns the adapter pair of ilk.
func (l *Ledger) Collateral(ilk string) (*Collateral, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.gems[ilk]
	return c, ok
}

// CollateralIDs lists the collateral types with attached adapters.
func (l *Ledger) CollateralIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.gems))
	for id := range l.gems {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Token resolves a token by symbol: DAI for the stablecoin, otherwise the
// collateral type identifier.
func (l *Ledger) Token(symbol string) (*token.Token, error) {
	symbol = strings.TrimSpace(symbol)
	if strings.EqualFold(symbol, DaiSymbol) {
		return l.Dai, nil
	}
	if c, ok := l.Collateral(symbol); ok {
		return c.Token, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
}

// InitCollateral registers ilk on the ledger and attaches its token and
// adapter. The caller becomes the first ward of both and authorises the
// adapter on the ledger. Every condition of the later steps is checked before
// the ilk is registered, so a rejected call leaves no state behind.
func (l *Ledger) InitCollateral(caller crypto.Address, ilk string) (*Collateral, error) {
	if err := l.checkSymbol(ilk); err != nil {
		return nil, err
	}
	ward, err := l.Vat.Wards(caller)
	if err != nil {
		return nil, err
	}
	if !ward {
		return nil, vat.ErrNotAuthorized
	}
	live, err := l.Vat.Live()
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, vat.ErrSystemCaged
	}
	if err := l.Vat.Init(caller, ilk); err != nil {
		return nil, err
	}
	c, err := l.openCollateral(ilk)
	if err != nil {
		return nil, err
	}
	if err := c.Token.Deploy(caller); err != nil && !errors.Is(err, token.ErrNotAuthorized) {
		return nil, err
	}
	if err := c.Join.Deploy(caller); err != nil && !errors.Is(err, join.ErrNotAuthorized) {
		return nil, err
	}
	if err := l.Vat.Rely(caller, c.Join.Address()); err != nil {
		return nil, err
	}
	return c, nil
}

// checkSymbol rejects an ilk whose token symbol, which is case-insensitive,
// belongs to the stablecoin or to another collateral type.
func (l *Ledger) checkSymbol(ilk string) error {
	if strings.EqualFold(strings.TrimSpace(ilk), DaiSymbol) {
		return fmt.Errorf("%w: %q", ErrSymbolTaken, ilk)
	}
	for _, id := range l.CollateralIDs() {
		if id != ilk && strings.EqualFold(id, ilk) {
			return fmt.Errorf("%w: %q collides with %q", ErrSymbolTaken, ilk, id)
		}
	}
	return nil
}

// ApplyGenesis deploys every module to deployer and seeds the configured
// collateral types. It reports false without changes when the ledger was
// already deployed.
func (l *Ledger) ApplyGenesis(deployer crypto.Address, genesis *config.ParsedGenesis) (bool, error) {
	globals, err := l.Vat.Globals()
	if err != nil {
		return false, err
	}
	if globals.Deployed {
		return false, nil
	}
	if genesis == nil {
		genesis = &config.ParsedGenesis{}
	}
	steps := []func() error{
		func() error { return l.Vat.Deploy(deployer) },
		func() error { return l.Jug.Deploy(deployer) },
		func() error { return l.Vat.Rely(deployer, l.Jug.Address()) },
		func() error { return l.Dai.Deploy(deployer) },
		func() error { return l.Dai.Rely(deployer, l.DaiJoin.Address()) },
		func() error { return l.DaiJoin.Deploy(deployer) },
	}
	if genesis.Line != nil {
		steps = append(steps, func() error { return l.Vat.File(deployer, vat.ParamGlobalLine, genesis.Line) })
	}
	if !genesis.Vow.IsZero() {
		steps = append(steps, func() error { return l.Jug.FileVow(deployer, jug.ParamVow, genesis.Vow) })
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return false, fmt.Errorf("genesis: %w", err)
		}
	}
	for _, ilk := range genesis.Ilks {
		if err := l.seedCollateral(deployer, ilk); err != nil {
			return false, fmt.Errorf("genesis: %s: %w", ilk.ID, err)
		}
	}
	l.buffer.Drain()
	l.logger.Info("genesis applied", "deployer", deployer.String(), "ilks", len(genesis.Ilks))
	return true, nil
}

func (l *Ledger) seedCollateral(deployer crypto.Address, ilk config.ParsedIlk) error {
	if _, err := l.InitCollateral(deployer, ilk.ID); err != nil {
		return err
	}
	if err := l.Vat.FileIlk(deployer, ilk.ID, vat.ParamSpot, ilk.Spot); err != nil {
		return err
	}
	if err := l.Vat.FileIlk(deployer, ilk.ID, vat.ParamLine, ilk.Line); err != nil {
		return err
	}
	if err := l.Vat.FileIlk(deployer, ilk.ID, vat.ParamDust, ilk.Dust); err != nil {
		return err
	}
	if err := l.Jug.Init(deployer, ilk.ID); err != nil {
		return err
	}
	if ilk.Duty != nil {
		return l.FileDuty(deployer, ilk.ID, ilk.Duty)
	}
	return nil
}

// FileDuty collects the fees accrued on ilk before changing its duty, so the
// new fee only applies from now on.
func (l *Ledger) FileDuty(caller crypto.Address, ilk string, duty *uint256.Int) error {
	err := l.Jug.FileDuty(caller, ilk, jug.ParamDuty, duty)
	if !errors.Is(err, jug.ErrRhoNotUpdated) {
		return err
	}
	if _, err := l.Jug.Drip(ilk); err != nil {
		return err
	}
	return l.Jug.FileDuty(caller, ilk, jug.ParamDuty, duty)
}

// drain returns the events emitted since the last call.
func (l *Ledger) drain() []events.Event {
	return l.buffer.Drain()
}

// begin opens a store transaction. Every module write until commit or
// discard is staged in memory.
func (l *Ledger) begin() { l.db.Begin() }

// commit writes the staged transaction in one batch.
func (l *Ledger) commit() error { return l.db.Commit() }

// discard drops the staged transaction together with the adapters attached
// for collateral types it registered.
func (l *Ledger) discard() {
	l.db.Discard()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.gems {
		ilk, err := l.Vat.Ilk(id)
		if err != nil || !ilk.Initialized() {
			delete(l.gems, id)
		}
	}
}
