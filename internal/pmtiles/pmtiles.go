// Package pmtiles writes PMTiles v3 archives of gzipped MVT tiles.
//
// Only single-directory archives are produced: every tile entry lives in the
// root directory, which must fit in the first 16 KiB of the archive. That is
// plenty for the per-dataset pyramids served as downloads.
//
// Spec: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
)

// Compression values of the header.
const (
	NoCompression uint8 = 1
	Gzip          uint8 = 2
)

// TileTypeMVT marks vector tile contents.
const TileTypeMVT uint8 = 1

// HeaderLen is the size of the fixed binary header.
const HeaderLen = 127

// maxRootLen is the space left for the root directory after the header.
const maxRootLen = 16384 - HeaderLen

var (
	// ErrNoTiles is returned when there is nothing to archive.
	ErrNoTiles = errors.New("no tiles to write")
	// ErrDirectoryTooLarge is returned when the tile entries do not fit in
	// the root directory.
	ErrDirectoryTooLarge = errors.New("root directory exceeds 16 KiB")
	errMagic             = errors.New("not a PMTiles v3 archive")
)

// Header is the decoded fixed header.
type Header struct {
	RootOffset, RootLength         uint64
	MetadataOffset, MetadataLength uint64
	TileDataOffset, TileDataLength uint64
	AddressedTiles                 uint64
	TileEntries                    uint64
	TileContents                   uint64
	Clustered                      bool
	InternalCompression            uint8
	TileCompression                uint8
	TileType                       uint8
	MinZoom, MaxZoom               uint8
	Bound                          orb.Bound
	CenterZoom                     uint8
}

// Tile is one encoded tile.
type Tile struct {
	Z, X, Y uint32
	Data    []byte
}

// Metadata is stored as gzipped JSON in the archive.
type Metadata struct {
	Name         string           `json:"name"`
	Format       string           `json:"format"`
	Compression  string           `json:"compression"`
	MinZoom      int              `json:"minzoom"`
	MaxZoom      int              `json:"maxzoom"`
	VectorLayers []map[string]any `json:"vector_layers,omitempty"`
}

// TileID converts z/x/y to the Hilbert curve tile id.
func TileID(z uint8, x, y uint32) uint64 {
	acc := (uint64(1)<<(uint(z)*2) - 1) / 3
	for s := uint32(1) << z >> 1; s > 0; s >>= 1 {
		rx, ry := uint32(0), uint32(0)
		if x&s != 0 {
			rx = 1
		}
		if y&s != 0 {
			ry = 1
		}
		acc += uint64(s) * uint64(s) * uint64((3*rx)^ry)
		if ry == 0 {
			if rx == 1 {
				x, y = s-1-x%s, s-1-y%s
			}
			x, y = y, x
		}
	}
	return acc
}

type entry struct {
	id     uint64
	offset uint64
	length uint32
}

// Write encodes tiles (already gzipped MVT) as a clustered archive.
func Write(w io.Writer, tiles []Tile, meta Metadata, bound orb.Bound) error {
	if len(tiles) == 0 {
		return ErrNoTiles
	}

	type keyed struct {
		id uint64
		t  *Tile
	}
	order := make([]keyed, len(tiles))
	for i := range tiles {
		t := &tiles[i]
		order[i] = keyed{TileID(uint8(t.Z), t.X, t.Y), t}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].id < order[j].id })

	entries := make([]entry, 0, len(order))
	var data bytes.Buffer
	minZ, maxZ := uint8(math.MaxUint8), uint8(0)
	for _, k := range order {
		entries = append(entries, entry{id: k.id, offset: uint64(data.Len()), length: uint32(len(k.t.Data))})
		data.Write(k.t.Data)
		minZ, maxZ = min(minZ, uint8(k.t.Z)), max(maxZ, uint8(k.t.Z))
	}

	root, err := gzipped(directory(entries))
	if err != nil {
		return err
	}
	if len(root) > maxRootLen {
		return fmt.Errorf("%w: %d tiles", ErrDirectoryTooLarge, len(entries))
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	metaBytes, err := gzipped(metaJSON)
	if err != nil {
		return err
	}

	h := Header{
		RootOffset:          HeaderLen,
		RootLength:          uint64(len(root)),
		MetadataOffset:      HeaderLen + uint64(len(root)),
		MetadataLength:      uint64(len(metaBytes)),
		TileDataLength:      uint64(data.Len()),
		AddressedTiles:      uint64(len(entries)),
		TileEntries:         uint64(len(entries)),
		TileContents:        uint64(len(entries)),
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     Gzip,
		TileType:            TileTypeMVT,
		MinZoom:             minZ,
		MaxZoom:             maxZ,
		Bound:               bound,
		CenterZoom:          minZ,
	}
	h.TileDataOffset = h.MetadataOffset + h.MetadataLength

	for _, part := range [][]byte{h.marshal(), root, metaBytes, data.Bytes()} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

// directory serializes entries: count, delta ids, run lengths, lengths, then
// offsets where 0 means "directly after the previous tile".
func directory(entries []entry) []byte {
	var b []byte
	b = binary.AppendUvarint(b, uint64(len(entries)))
	last := uint64(0)
	for _, e := range entries {
		b = binary.AppendUvarint(b, e.id-last)
		last = e.id
	}
	for range entries {
		b = binary.AppendUvarint(b, 1)
	}
	for _, e := range entries {
		b = binary.AppendUvarint(b, uint64(e.length))
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+uint64(entries[i-1].length) {
			b = binary.AppendUvarint(b, 0)
		} else {
			b = binary.AppendUvarint(b, e.offset+1)
		}
	}
	return b
}

func gzipped(p []byte) ([]byte, error) {
	var b bytes.Buffer
	zw, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(p); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func e7(v float64) uint32 { return uint32(int32(math.Round(v * 1e7))) }

func fromE7(v uint32) float64 { return float64(int32(v)) / 1e7 }

func (h Header) marshal() []byte {
	b := make([]byte, HeaderLen)
	copy(b, "PMTiles")
	b[7] = 3
	le := binary.LittleEndian
	for i, v := range []uint64{
		h.RootOffset, h.RootLength, h.MetadataOffset, h.MetadataLength,
		0, 0, // leaf directories
		h.TileDataOffset, h.TileDataLength,
		h.AddressedTiles, h.TileEntries, h.TileContents,
	} {
		le.PutUint64(b[8+8*i:], v)
	}
	if h.Clustered {
		b[96] = 1
	}
	b[97], b[98], b[99] = h.InternalCompression, h.TileCompression, h.TileType
	b[100], b[101] = h.MinZoom, h.MaxZoom
	le.PutUint32(b[102:], e7(h.Bound.Min[0]))
	le.PutUint32(b[106:], e7(h.Bound.Min[1]))
	le.PutUint32(b[110:], e7(h.Bound.Max[0]))
	le.PutUint32(b[114:], e7(h.Bound.Max[1]))
	c := h.Bound.Center()
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], e7(c[0]))
	le.PutUint32(b[123:], e7(c[1]))
	return b
}

// ReadHeader decodes the fixed header at the start of an archive.
func ReadHeader(d []byte) (Header, error) {
	var h Header
	if len(d) < HeaderLen || string(d[:7]) != "PMTiles" || d[7] != 3 {
		return h, errMagic
	}
	le := binary.LittleEndian
	u := func(i int) uint64 { return le.Uint64(d[8+8*i:]) }
	h.RootOffset, h.RootLength = u(0), u(1)
	h.MetadataOffset, h.MetadataLength = u(2), u(3)
	h.TileDataOffset, h.TileDataLength = u(6), u(7)
	h.AddressedTiles, h.TileEntries, h.TileContents = u(8), u(9), u(10)
	h.Clustered = d[96] == 1
	h.InternalCompression, h.TileCompression, h.TileType = d[97], d[98], d[99]
	h.MinZoom, h.MaxZoom = d[100], d[101]
	h.Bound = orb.Bound{
		Min: orb.Point{fromE7(le.Uint32(d[102:])), fromE7(le.Uint32(d[106:]))},
		Max: orb.Point{fromE7(le.Uint32(d[110:])), fromE7(le.Uint32(d[114:]))},
	}
	h.CenterZoom = d[118]
	return h, nil
}
