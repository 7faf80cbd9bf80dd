package board

import "testing"

func TestInitialPositionSetup(t *testing.T) {
	p := InitialPosition()

	if p.SideToMove() != AttackerSide {
		t.Fatalf("expected attacker to move, got %v", p.SideToMove())
	}
	if got := p.PieceCount(Attacker); got != 8 {
		t.Fatalf("expected 8 attackers, got %d", got)
	}
	if got := p.PieceCount(Defender); got != 4 {
		t.Fatalf("expected 4 defenders, got %d", got)
	}
	if got := p.PieceCount(King); got != 1 {
		t.Fatalf("expected 1 king, got %d", got)
	}
	if p.At(Square{3, 3}) != King {
		t.Fatalf("expected king at center, got %v", p.At(Square{3, 3}))
	}
}

func TestCorners(t *testing.T) {
	corners := []Square{{0, 0}, {0, 6}, {6, 0}, {6, 6}}
	for _, sq := range corners {
		if !sq.IsCorner() {
			t.Errorf("expected %v to be a corner", sq)
		}
	}
	nonCorners := []Square{{0, 3}, {3, 3}, {6, 3}, {3, 0}}
	for _, sq := range nonCorners {
		if sq.IsCorner() {
			t.Errorf("expected %v not to be a corner", sq)
		}
	}
}

func TestSideOwns(t *testing.T) {
	if !AttackerSide.Owns(Attacker) {
		t.Error("attacker side should own Attacker pieces")
	}
	if AttackerSide.Owns(King) {
		t.Error("attacker side should not own the King")
	}
	if !DefenderSide.Owns(King) || !DefenderSide.Owns(Defender) {
		t.Error("defender side should own Defender and King pieces")
	}
	if AttackerSide.Opponent() != DefenderSide || DefenderSide.Opponent() != AttackerSide {
		t.Error("Opponent should flip sides")
	}
}

func TestPositionEqualIsValueEquality(t *testing.T) {
	a := InitialPosition()
	b := InitialPosition()
	if !a.Equal(b) {
		t.Fatal("two initial positions should compare equal")
	}
	b = b.Set(Square{0, 0}, King)
	if a.Equal(b) {
		t.Fatal("positions with different cells should not compare equal")
	}
}
