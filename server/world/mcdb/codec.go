package mcdb

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/stage"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

const (
	keyTag    = 'g'
	keyLen    = 9
	sumLen    = 8
	kindProto = 0
	kindLevel = 1
)

// record is the NBT layout of a stored chunk.
type record struct {
	X          int32    `nbt:"x"`
	Z          int32    `nbt:"z"`
	Status     string   `nbt:"status"`
	Kind       uint8    `nbt:"kind"`
	Lit        uint8    `nbt:"lit"`
	Height     int32    `nbt:"height"`
	Blocks     []byte   `nbt:"blocks"`
	Biomes     []byte   `nbt:"biomes"`
	Heights    []int32  `nbt:"heights"`
	Structures []string `nbt:"structures"`
	References []int64  `nbt:"references"`
}

func key(pos chunk.Pos) []byte {
	k := make([]byte, keyLen)
	binary.LittleEndian.PutUint32(k, uint32(pos[0]))
	binary.LittleEndian.PutUint32(k[4:], uint32(pos[1]))
	k[8] = keyTag
	return k
}

func parseKey(k []byte) (chunk.Pos, bool) {
	if len(k) != keyLen || k[8] != keyTag {
		return chunk.Pos{}, false
	}
	return chunk.Pos{int32(binary.LittleEndian.Uint32(k)), int32(binary.LittleEndian.Uint32(k[4:]))}, true
}

func (db *DB) encode(c chunk.Chunk) ([]byte, error) {
	r := record{X: c.Pos()[0], Z: c.Pos()[1], Status: c.Status().String(), Kind: kindProto}
	if c.Level != nil {
		r.Kind = kindLevel
	}
	if c.Lit() {
		r.Lit = 1
	}
	c.View(func(d *chunk.Data) {
		r.Height = int32(d.Height)
		r.Blocks = make([]byte, len(d.Blocks)*2)
		for i, b := range d.Blocks {
			binary.LittleEndian.PutUint16(r.Blocks[i*2:], b)
		}
		r.Biomes = append([]byte(nil), d.Biomes...)
		r.Heights = append([]int32(nil), d.Heights...)
		r.Structures = append([]string(nil), d.Structures...)
		r.References = make([]int64, len(d.References))
		for i, ref := range d.References {
			r.References[i] = ref.Pack()
		}
	})
	raw, err := nbt.MarshalEncoding(r, nbt.LittleEndian)
	if err != nil {
		return nil, err
	}
	body := db.enc.EncodeAll(raw, nil)
	out := make([]byte, sumLen, sumLen+len(body))
	binary.LittleEndian.PutUint64(out, xxhash.Sum64(body))
	return append(out, body...), nil
}

func (db *DB) decode(pos chunk.Pos, data []byte) (chunk.Chunk, error) {
	if len(data) < sumLen {
		return chunk.Chunk{}, ErrCorrupt
	}
	body := data[sumLen:]
	if binary.LittleEndian.Uint64(data) != xxhash.Sum64(body) {
		return chunk.Chunk{}, ErrCorrupt
	}
	raw, err := db.dec.DecodeAll(body, nil)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("decompress: %w", err)
	}
	var r record
	if err := nbt.UnmarshalEncoding(raw, &r, nbt.LittleEndian); err != nil {
		return chunk.Chunk{}, fmt.Errorf("unmarshal: %w", err)
	}
	if r.X != pos[0] || r.Z != pos[1] {
		return chunk.Chunk{}, fmt.Errorf("record holds chunk (%d, %d)", r.X, r.Z)
	}
	status, ok := stage.Parse(r.Status)
	if !ok || status < stage.Empty {
		return chunk.Chunk{}, fmt.Errorf("unknown status %q", r.Status)
	}

	d := &chunk.Data{Height: int(r.Height)}
	area := chunk.Width * chunk.Width
	if d.Height <= 0 || len(r.Blocks) != area*d.Height*2 || len(r.Biomes) != area || len(r.Heights) != area {
		return chunk.Chunk{}, fmt.Errorf("malformed column data")
	}
	d.Blocks = make([]uint16, len(r.Blocks)/2)
	for i := range d.Blocks {
		d.Blocks[i] = binary.LittleEndian.Uint16(r.Blocks[i*2:])
	}
	d.Biomes, d.Heights, d.Structures = r.Biomes, r.Heights, r.Structures
	for _, ref := range r.References {
		d.References = append(d.References, chunk.Unpack(ref))
	}

	if r.Kind == kindLevel {
		if status != stage.Full {
			return chunk.Chunk{}, fmt.Errorf("level chunk stored with status %v", status)
		}
		return chunk.FromLevel(chunk.LoadedLevel(pos, r.Lit == 1, d)), nil
	}
	return chunk.FromProto(chunk.NewProtoFrom(pos, status, r.Lit == 1, d)), nil
}
