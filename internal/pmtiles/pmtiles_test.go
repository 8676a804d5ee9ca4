package pmtiles

import (
	"bytes"
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

func TestTileID(t *testing.T) {
	tests := []struct {
		z    uint8
		x, y uint32
		want uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{1, 0, 1, 2},
		{1, 1, 1, 3},
		{1, 1, 0, 4},
		{2, 0, 0, 5},
		{12, 3423, 1763, 19078479},
	}
	for _, tt := range tests {
		if got := TileID(tt.z, tt.x, tt.y); got != tt.want {
			t.Errorf("TileID(%d,%d,%d) = %d, want %d", tt.z, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestWriteHeader(t *testing.T) {
	tiles := []Tile{
		{Z: 1, X: 1, Y: 0, Data: []byte("dddd")},
		{Z: 0, X: 0, Y: 0, Data: []byte("a")},
		{Z: 1, X: 0, Y: 0, Data: []byte("bb")},
	}
	bound := orb.Bound{Min: orb.Point{-10.5, -20.25}, Max: orb.Point{30, 40}}

	var buf bytes.Buffer
	if err := Write(&buf, tiles, Metadata{Name: "vlc", Format: "pbf", Compression: "gzip", MaxZoom: 1}, bound); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	if h.TileEntries != 3 || h.MinZoom != 0 || h.MaxZoom != 1 || !h.Clustered {
		t.Errorf("header = %+v", h)
	}
	if h.TileType != TileTypeMVT || h.TileCompression != Gzip {
		t.Errorf("types = %d/%d", h.TileType, h.TileCompression)
	}
	if h.Bound != bound {
		t.Errorf("bound = %v, want %v", h.Bound, bound)
	}
	if h.RootOffset != HeaderLen || h.MetadataOffset != h.RootOffset+h.RootLength ||
		h.TileDataOffset != h.MetadataOffset+h.MetadataLength {
		t.Errorf("sections not contiguous: %+v", h)
	}
	if got := uint64(buf.Len()); got != h.TileDataOffset+h.TileDataLength {
		t.Errorf("archive length = %d", got)
	}

	// Tile data is clustered by tile id: z0, then z1 (0,0), then z1 (1,0).
	data := buf.Bytes()[h.TileDataOffset:]
	if string(data) != "abbdddd" {
		t.Errorf("tile data = %q", data)
	}
}

func TestWriteEmpty(t *testing.T) {
	if err := Write(&bytes.Buffer{}, nil, Metadata{}, orb.Bound{}); !errors.Is(err, ErrNoTiles) {
		t.Fatalf("err = %v", err)
	}
}

func TestReadHeaderRejectsGarbage(t *testing.T) {
	if _, err := ReadHeader([]byte("not an archive")); err == nil {
		t.Fatal("expected error")
	}
}
