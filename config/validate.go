package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/holiman/uint256"

	"vatchain/core/fixedpoint"
	"vatchain/crypto"
	"vatchain/native/vat"
	"vatchain/storage"
)

// MaxIlkIDLength mirrors the ledger's collateral identifier bound.
const MaxIlkIDLength = vat.MaxIlkLength

// ParsedIlk is a GenesisIlk with amounts converted to fixed point.
type ParsedIlk struct {
	ID   string
	Spot *uint256.Int
	Line *uint256.Int
	Dust *uint256.Int
	// Duty is nil when no fee is configured.
	Duty *uint256.Int
}

// ParsedGenesis is the runtime form of Genesis.
type ParsedGenesis struct {
	Line *uint256.Int
	// Vow receives stability fees. Zero when unset.
	Vow  crypto.Address
	Ilks []ParsedIlk
}

// Parse converts the decimal amounts and checks identifiers.
func (g Genesis) Parse() (*ParsedGenesis, error) {
	out := &ParsedGenesis{}
	var err error
	if out.Line, err = parseAmount(g.Line, fixedpoint.RadDecimals); err != nil {
		return nil, fmt.Errorf("genesis: Line: %w", err)
	}
	if vow := strings.TrimSpace(g.Vow); vow != "" {
		if out.Vow, err = crypto.DecodeAddress(vow); err != nil {
			return nil, fmt.Errorf("genesis: Vow: %w", err)
		}
	}
	seen := make(map[string]struct{}, len(g.Ilks))
	for i, ilk := range g.Ilks {
		id := vat.NormalizeIlk(ilk.ID)
		if id == "" || len(id) > MaxIlkIDLength {
			return nil, fmt.Errorf("genesis: ilks[%d]: invalid id %q", i, ilk.ID)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("genesis: ilks[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		parsed := ParsedIlk{ID: id}
		if parsed.Spot, err = parseAmount(ilk.Spot, fixedpoint.RayDecimals); err != nil {
			return nil, fmt.Errorf("genesis: %s: Spot: %w", id, err)
		}
		if parsed.Line, err = parseAmount(ilk.Line, fixedpoint.RadDecimals); err != nil {
			return nil, fmt.Errorf("genesis: %s: Line: %w", id, err)
		}
		if parsed.Dust, err = parseAmount(ilk.Dust, fixedpoint.RadDecimals); err != nil {
			return nil, fmt.Errorf("genesis: %s: Dust: %w", id, err)
		}
		if strings.TrimSpace(ilk.Duty) != "" {
			if parsed.Duty, err = parseAmount(ilk.Duty, fixedpoint.RayDecimals); err != nil {
				return nil, fmt.Errorf("genesis: %s: Duty: %w", id, err)
			}
			if parsed.Duty.IsZero() {
				return nil, fmt.Errorf("genesis: %s: Duty must be positive", id)
			}
		}
		out.Ilks = append(out.Ilks, parsed)
	}
	return out, nil
}

func parseAmount(value string, decimals int) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(uint256.Int), nil
	}
	return fixedpoint.ParseUnits(value, decimals)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.Deployer == "" {
		return fmt.Errorf("deployer address required")
	}
	if _, err := crypto.DecodeAddress(cfg.Deployer); err != nil {
		return fmt.Errorf("deployer: %w", err)
	}
	if !cfg.Auth.Disabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: hmac secret required unless auth is disabled")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	switch cfg.StorageEngine {
	case storage.EngineLevelDB, storage.EngineBolt:
	default:
		return fmt.Errorf("storage engine %q must be %s or %s", cfg.StorageEngine, storage.EngineLevelDB, storage.EngineBolt)
	}
	for _, origin := range cfg.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("allowed origin %q must be scheme://host", origin)
		}
	}
	if _, err := cfg.Genesis.Parse(); err != nil {
		return err
	}
	return nil
}
