package chunk

import (
	"testing"

	"github.com/df-mc/chunkgen/server/world/stage"
	"github.com/go-gl/mathgl/mgl64"
)

func TestPosPackRoundTrip(t *testing.T) {
	for _, pos := range []Pos{{0, 0}, {-1, 1}, {1 << 20, -(1 << 20)}, Sentinel} {
		if got := Unpack(pos.Pack()); got != pos {
			t.Fatalf("expected %v after packing, got %v", pos, got)
		}
	}
}

func TestPosFromVec3(t *testing.T) {
	if got := PosFromVec3(mgl64.Vec3{-0.5, 64, 31.9}); got != (Pos{-1, 1}) {
		t.Fatalf("expected (-1, 1), got %v", got)
	}
}

func TestPosDistance(t *testing.T) {
	if d := (Pos{0, 0}).Distance(Pos{-3, 2}); d != 3 {
		t.Fatalf("expected distance 3, got %d", d)
	}
}

func TestDataHeights(t *testing.T) {
	d := NewData(16)
	if d.HeightAt(3, 4) != -1 {
		t.Fatalf("expected empty column")
	}
	d.SetBlock(3, 5, 4, 1)
	d.SetBlock(3, 9, 4, 2)
	if h := d.HeightAt(3, 4); h != 9 {
		t.Fatalf("expected height 9, got %d", h)
	}
	d.SetBlock(3, 9, 4, 0)
	if h := d.HeightAt(3, 4); h != 5 {
		t.Fatalf("expected height 5 after removing the top block, got %d", h)
	}
	d.SetBlock(3, 40, 4, 1)
	if h := d.HeightAt(3, 4); h != 5 {
		t.Fatalf("expected out of range blocks to be ignored, got height %d", h)
	}
}

func TestLevelReferences(t *testing.T) {
	l := NewLevel(NewProto(Pos{1, 2}, 16))
	if l.Refs() != 1 {
		t.Fatalf("expected a single owner reference, got %d", l.Refs())
	}
	if !l.Dirty() {
		t.Fatalf("expected a freshly promoted chunk to be dirty")
	}
	l.Acquire()
	if l.Refs() != 2 {
		t.Fatalf("expected 2 references, got %d", l.Refs())
	}
	l.Release()
	if l.Refs() != 1 {
		t.Fatalf("expected 1 reference after release, got %d", l.Refs())
	}
}

func TestLevelDowngradeCopies(t *testing.T) {
	l := NewLevel(NewProto(Pos{0, 0}, 16))
	l.SetBlock(1, 1, 1, 7)
	p := l.Downgrade(stage.Features, false)
	p.SetBlock(1, 1, 1, 9)
	if l.Block(1, 1, 1) != 7 {
		t.Fatalf("downgraded proto must not share data with the Level chunk")
	}
	if p.Status != stage.Features || p.Lit {
		t.Fatalf("unexpected proto state %v lit=%v", p.Status, p.Lit)
	}
}

func TestChunkUnion(t *testing.T) {
	var c Chunk
	if !c.IsZero() || c.Status() != stage.None || c.Pos() != Sentinel {
		t.Fatalf("expected zero chunk to hold nothing")
	}
	p := NewProto(Pos{4, 5}, 16)
	p.Status = stage.Noise
	c = FromProto(p)
	if c.Status() != stage.Noise || c.Pos() != (Pos{4, 5}) {
		t.Fatalf("unexpected proto view %v %v", c.Status(), c.Pos())
	}
	c = FromLevel(NewLevel(p))
	if c.Status() != stage.Full {
		t.Fatalf("expected Level chunks to be Full, got %v", c.Status())
	}
}

func TestCacheRowMajor(t *testing.T) {
	center := Pos{10, -4}
	c := NewCache(center, 1)
	if c.Len() != 9 || c.Side() != 3 {
		t.Fatalf("unexpected cache shape len=%d side=%d", c.Len(), c.Side())
	}
	for i := 0; i < c.Len(); i++ {
		c.Put(FromProto(NewProto(c.PosAt(i), 16)))
	}
	if got := c.PosAt(0); got != center.Add(-1, -1) {
		t.Fatalf("expected first slot at %v, got %v", center.Add(-1, -1), got)
	}
	if got := c.PosAt(1); got != center.Add(-1, 0) {
		t.Fatalf("expected z to vary fastest, got %v", got)
	}
	if got := c.CenterChunk().Pos(); got != center {
		t.Fatalf("expected centre %v, got %v", center, got)
	}
	if _, ok := c.Get(center.Add(2, 0)); ok {
		t.Fatalf("expected position outside the radius to be missing")
	}
	chunks := c.Take()
	for i, ch := range chunks {
		if ch.Pos() != c.PosAt(i) {
			t.Fatalf("slot %d holds %v, expected %v", i, ch.Pos(), c.PosAt(i))
		}
	}
	if !c.CenterChunk().IsZero() {
		t.Fatalf("expected Take to empty the cache")
	}
}
