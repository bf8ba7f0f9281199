package events

import (
	"testing"

	"github.com/holiman/uint256"

	"vatchain/core/fixedpoint"
	"vatchain/crypto"
)

func TestVatFrobEventTypes(t *testing.T) {
	owner := crypto.LabelAddress("owner")
	frob := VatFrob{
		Ilk:  "gold",
		U:    owner,
		V:    owner,
		W:    owner,
		Dink: fixedpoint.Pos(uint256.NewInt(10)),
		Dart: fixedpoint.Neg(uint256.NewInt(4)),
		Ink:  uint256.NewInt(10),
	}
	evt := frob.Event()
	if evt.Type != TypeVatFrob {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["dart"] != "-4" || evt.Attributes["art"] != "0" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["u"] != owner.String() {
		t.Fatalf("expected bech32 owner, got %s", evt.Attributes["u"])
	}

	frob.Seized = true
	if frob.EventType() != TypeVatGrab {
		t.Fatalf("expected grab type, got %s", frob.EventType())
	}
}

func TestVatFileEventTypes(t *testing.T) {
	global := VatFile{What: "Line", Data: uint256.NewInt(1)}
	if global.EventType() != TypeVatFile {
		t.Fatalf("unexpected type %s", global.EventType())
	}
	perIlk := VatFile{Ilk: "gold", What: "spot", Data: uint256.NewInt(2)}
	evt := perIlk.Event()
	if evt.Type != TypeVatFileIlk || evt.Attributes["ilk"] != "gold" {
		t.Fatalf("unexpected ilk file event: %+v", evt)
	}
}

func TestBufferDrainAndRender(t *testing.T) {
	var buf Buffer
	buf.Emit(VatCage{})
	buf.Emit(VatAuth{Action: AuthHope})
	rendered := Render(buf.Drain())
	if len(rendered) != 2 {
		t.Fatalf("expected two rendered events, got %d", len(rendered))
	}
	if rendered[1].Type != "vat.hope" {
		t.Fatalf("unexpected auth type %s", rendered[1].Type)
	}
	if len(buf.Drain()) != 0 {
		t.Fatalf("drain should reset the buffer")
	}
}

func TestFanoutSkipsNil(t *testing.T) {
	var a, b Buffer
	Fanout{&a, nil, &b}.Emit(VatInit{Ilk: "gold"})
	if len(a.Drain()) != 1 || len(b.Drain()) != 1 {
		t.Fatalf("expected both buffers to receive the event")
	}
}
