package sequencer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"vatchain/core/fixedpoint"
	"vatchain/crypto"
	"vatchain/native/vat"
)

var (
	ErrUnknownOp     = errors.New("sequencer: unknown operation")
	ErrInvalidTx     = errors.New("sequencer: invalid transaction")
	ErrUnknownToken  = errors.New("sequencer: unknown token")
	ErrSymbolTaken   = errors.New("sequencer: token symbol taken")
	ErrQuotaExceeded = errors.New("sequencer: quota exceeded")
)

// Tx is a ledger operation submitted by a caller. Fields not used by Op are
// ignored. Address fields left empty default to the caller.
type Tx struct {
	Op    string `json:"op"`
	Ilk   string `json:"ilk,omitempty"`
	What  string `json:"what,omitempty"`
	Token string `json:"token,omitempty"`

	Usr string `json:"usr,omitempty"`
	U   string `json:"u,omitempty"`
	V   string `json:"v,omitempty"`
	W   string `json:"w,omitempty"`
	Src string `json:"src,omitempty"`
	Dst string `json:"dst,omitempty"`

	Data *Amount `json:"data,omitempty"`
	Wad  *Amount `json:"wad,omitempty"`
	Rad  *Amount `json:"rad,omitempty"`
	Dink *Amount `json:"dink,omitempty"`
	Dart *Amount `json:"dart,omitempty"`
	Rate *Amount `json:"rate,omitempty"`
}

// DecodeTx parses a JSON transaction, rejecting unknown fields.
func DecodeTx(raw []byte) (*Tx, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	tx := new(Tx)
	if err := dec.Decode(tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}
	tx.Op = strings.ToLower(strings.TrimSpace(tx.Op))
	tx.Ilk = vat.NormalizeIlk(tx.Ilk)
	if tx.Op == "" {
		return nil, fmt.Errorf("%w: op required", ErrInvalidTx)
	}
	return tx, nil
}

func (tx *Tx) address(field, value string, caller crypto.Address) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return caller, nil
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", ErrInvalidTx, field, err)
	}
	return addr, nil
}

// Amount is an integer in base units. It decodes from a JSON number, a
// decimal string optionally suffixed with a unit ("1.5 wad", "-2 rad") or a
// pair of 128-bit limbs {"low": "...", "high": "..."} in two's complement.
type Amount struct {
	text  string
	split bool
	low   *uint256.Int
	high  *uint256.Int
}

// NewAmount wraps a decimal string.
func NewAmount(text string) *Amount { return &Amount{text: text} }

// SplitAmount wraps a pair of limbs.
func SplitAmount(low, high *uint256.Int) *Amount {
	return &Amount{split: true, low: low, high: high}
}

type limbs struct {
	Low  string `json:"low"`
	High string `json:"high"`
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*a = Amount{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount{text: s}
	case data[0] == '{':
		var l limbs
		if err := json.Unmarshal(data, &l); err != nil {
			return err
		}
		low, err := parseLimb(l.Low)
		if err != nil {
			return fmt.Errorf("low limb: %w", err)
		}
		high, err := parseLimb(l.High)
		if err != nil {
			return fmt.Errorf("high limb: %w", err)
		}
		*a = Amount{split: true, low: low, high: high}
	default:
		*a = Amount{text: string(data)}
	}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.split {
		return json.Marshal(limbs{Low: a.low.Dec(), High: a.high.Dec()})
	}
	return json.Marshal(a.text)
}

func parseLimb(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}

var unitDecimals = map[string]int{
	"wad": fixedpoint.WadDecimals,
	"ray": fixedpoint.RayDecimals,
	"rad": fixedpoint.RadDecimals,
}

// scaled splits an optional unit suffix off the text form.
func (a *Amount) scaled() (string, int, error) {
	text := strings.TrimSpace(a.text)
	fields := strings.Fields(text)
	switch len(fields) {
	case 0:
		return "0", 0, nil
	case 1:
		return fields[0], 0, nil
	case 2:
		decimals, ok := unitDecimals[strings.ToLower(fields[1])]
		if !ok {
			return "", 0, fmt.Errorf("unknown unit %q", fields[1])
		}
		return fields[0], decimals, nil
	default:
		return "", 0, fmt.Errorf("malformed amount %q", text)
	}
}

// Uint returns the amount as an unsigned integer. A nil amount is zero.
func (a *Amount) Uint() (*uint256.Int, error) {
	if a == nil {
		return new(uint256.Int), nil
	}
	if a.split {
		return fixedpoint.FromSplit(a.low, a.high)
	}
	value, decimals, err := a.scaled()
	if err != nil {
		return nil, err
	}
	return fixedpoint.ParseUnits(value, decimals)
}

// Delta returns the amount as a signed adjustment. A nil amount is zero.
func (a *Amount) Delta() (fixedpoint.Delta, error) {
	if a == nil {
		return fixedpoint.Delta{}, nil
	}
	if a.split {
		return fixedpoint.DeltaFromSplit(a.low, a.high)
	}
	value, decimals, err := a.scaled()
	if err != nil {
		return fixedpoint.Delta{}, err
	}
	return fixedpoint.ParseDelta(value, decimals)
}

func (a *Amount) String() string {
	if a == nil {
		return "0"
	}
	if a.split {
		v, err := fixedpoint.FromSplit(a.low, a.high)
		if err != nil {
			return "invalid"
		}
		return v.Dec()
	}
	return a.text
}
