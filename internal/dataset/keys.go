// Package dataset declares the geohazard datasets served by the portal: the
// closed set of dataset keys, the filter definitions attached to each dataset
// and the relational layout the query layer reads them from.
package dataset

import (
	"errors"
	"fmt"
)

// Key identifies a geohazard dataset.
type Key string

const (
	Volcanoes  Key = "vlc"
	Seamounts  Key = "smt"
	GNSS       Key = "gnss"
	Faults     Key = "flt"
	Seismicity Key = "seis"
	HeatFlow   Key = "hf"
	Slab2      Key = "slab2"
	Slip       Key = "slip"
	Rocks      Key = "rock"
)

// Keys lists every dataset in display order.
var Keys = []Key{Volcanoes, Seamounts, GNSS, Faults, Seismicity, HeatFlow, Slab2, Slip, Rocks}

// ErrUnknownDataset is returned for keys outside the closed dataset set.
var ErrUnknownDataset = errors.New("unknown dataset")

// Parse validates s against the dataset key set.
func Parse(s string) (Key, error) {
	k := Key(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDataset, s)
	}
	return k, nil
}

// Valid reports whether k is one of the known dataset keys.
func (k Key) Valid() bool {
	_, ok := specs[k]
	return ok
}

func (k Key) String() string { return string(k) }
