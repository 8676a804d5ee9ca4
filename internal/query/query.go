// Package query runs filtered dataset loads against the store and converts
// the rows into GeoJSON feature collections.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/filter"
	"github.com/joeblew999/plat-hazard/internal/logger"
	"github.com/joeblew999/plat-hazard/internal/metrics"
	"github.com/joeblew999/plat-hazard/internal/store"
)

// ErrNoFilters is returned for a filtered load of a dataset that has no
// filter definitions.
var ErrNoFilters = errors.New("dataset has no filters")

// Column aliases reserved by the generated SELECT.
const (
	idColumn       = "id"
	geometryColumn = "geometry"
)

// Request is the payload of a dataset load. Values is only read when Filter
// is true; Drawing is an optional GeoJSON polygon or multi-polygon.
type Request struct {
	Filter  bool            `json:"filter" doc:"Apply the filter values"`
	Values  json.RawMessage `json:"values,omitempty" doc:"Filter form state keyed by filter key"`
	Drawing json.RawMessage `json:"drawing,omitempty" doc:"GeoJSON Polygon or MultiPolygon to intersect with"`
}

// Data is a successfully loaded dataset.
type Data struct {
	GeoJSON  *geojson.FeatureCollection `json:"geojson"`
	Units    map[string]string          `json:"units,omitempty"`
	Metadata *[2]float64                `json:"metadata,omitempty"`
	// Skipped counts matching rows left out for lack of a geometry.
	Skipped int `json:"skipped,omitempty" doc:"Matching rows without geometry, not included as features"`
}

// Result is the tagged outcome of a load. Exactly one of Data and Error is set.
type Result struct {
	Success     bool              `json:"success"`
	Data        *Data             `json:"data,omitempty"`
	Error       string            `json:"error,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// Executor loads datasets.
type Executor struct {
	store   store.Store
	timeout time.Duration
	logger  *zap.Logger
}

// NewExecutor creates an Executor. A zero timeout leaves queries bounded only
// by the caller's context.
func NewExecutor(s store.Store, timeout time.Duration, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{store: s, timeout: timeout, logger: logger}
}

// LoadDataset validates req, runs the query and converts the rows. It never
// returns an error: every failure is reported through Result. Validation
// failures are reported before the store is touched.
func (e *Executor) LoadDataset(ctx context.Context, key dataset.Key, req Request, privileged bool) Result {
	start := time.Now()
	log := logger.FromContext(ctx, e.logger).With(zap.String("dataset", string(key)))

	spec, err := dataset.Lookup(key)
	if err != nil {
		metrics.ObserveLoad("unknown", "invalid", time.Since(start), 0)
		return fail(err)
	}

	sql, args, err := Statement(spec, req, privileged)
	if err != nil {
		metrics.ObserveLoad(string(key), "invalid", time.Since(start), 0)
		log.Debug("dataset load rejected", zap.Error(err))
		return fail(err)
	}

	if e.store == nil {
		metrics.ObserveLoad(string(key), "error", time.Since(start), 0)
		return fail(store.ErrUnavailable)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	res, err := e.store.Query(ctx, sql, args...)
	if err != nil {
		metrics.ObserveLoad(string(key), "error", time.Since(start), 0)
		log.Error("dataset query failed", zap.Error(err))
		return Result{Error: fmt.Sprintf("failed to load %s", spec.Title)}
	}

	fc, skipped, err := ToFeatureCollection(res)
	if err != nil {
		metrics.ObserveLoad(string(key), "error", time.Since(start), 0)
		log.Error("dataset conversion failed", zap.Error(err))
		return Result{Error: fmt.Sprintf("failed to load %s", spec.Title)}
	}

	if skipped > 0 {
		log.Warn("rows without geometry left out",
			zap.Int("rows", len(res.Rows)),
			zap.Int("skipped", skipped),
		)
	}

	data := &Data{GeoJSON: fc, Units: copyUnits(spec.Units), Skipped: skipped}
	if spec.RangeProperty != "" {
		data.Metadata = Extent(fc, spec.RangeProperty)
	}

	metrics.ObserveLoad(string(key), "ok", time.Since(start), len(fc.Features))
	log.Info("dataset loaded",
		zap.Bool("filtered", req.Filter),
		zap.Bool("privileged", privileged),
		zap.Int("features", len(fc.Features)),
		zap.Int("skipped", skipped),
		zap.Duration("took", time.Since(start)),
	)
	return Result{Success: true, Data: data}
}

func fail(err error) Result {
	r := Result{Error: err.Error()}
	var ve *filter.ValidationError
	if errors.As(err, &ve) {
		r.FieldErrors = ve.Fields
	}
	return r
}

// Statement builds the SELECT for one load. It validates the filter values
// and region, so a nil error means the statement is safe to run.
func Statement(spec *dataset.Spec, req Request, privileged bool) (string, []any, error) {
	var w filter.Where

	if req.Filter {
		if spec.Filters == nil {
			return "", nil, fmt.Errorf("%w: %s", ErrNoFilters, spec.Key)
		}
		values, err := filter.Validate(spec.Filters, req.Values)
		if err != nil {
			return "", nil, err
		}
		filter.Predicates(&w, spec.Filters, values)
	}

	if hasDrawing(req.Drawing) {
		region, err := filter.ParseRegion(req.Drawing)
		if err != nil {
			return "", nil, err
		}
		if err := filter.Intersects(&w, spec.Geometry, region); err != nil {
			return "", nil, err
		}
	}

	if !privileged && spec.Restricted != "" {
		w.And(fmt.Sprintf("NOT COALESCE(%s, FALSE)", spec.Restricted))
	}

	cols := make([]string, 0, len(spec.Attributes)+2)
	cols = append(cols, fmt.Sprintf("%s AS %s", spec.ID, idColumn))
	for _, a := range spec.Attributes {
		cols = append(cols, fmt.Sprintf(`%s AS "%s"`, a.Expr, a.Name))
	}
	cols = append(cols, fmt.Sprintf("CAST(ST_AsGeoJSON(%s) AS VARCHAR) AS %s", spec.Geometry, geometryColumn))

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(spec.From())
	if where := w.SQL(); where != "" {
		b.WriteString(" ")
		b.WriteString(where)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(spec.ID)
	return b.String(), w.Args(), nil
}

func hasDrawing(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

func copyUnits(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
