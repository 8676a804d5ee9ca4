// Package populate computes the Populate Snapshot: the observed bounds and
// categories of every filter, used to seed form defaults and slider ranges.
package populate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-hazard/internal/cache"
	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/metrics"
	"github.com/joeblew999/plat-hazard/internal/store"
)

// Bounds is the observed extent of one filter. Numeric filters set Min/Max,
// date filters From/To, select filters Categories. Categories is nil when the
// list could not be computed.
type Bounds struct {
	Min        *float64   `json:"min,omitempty" msgpack:"min,omitempty"`
	Max        *float64   `json:"max,omitempty" msgpack:"max,omitempty"`
	From       *time.Time `json:"from,omitempty" msgpack:"from,omitempty"`
	To         *time.Time `json:"to,omitempty" msgpack:"to,omitempty"`
	Categories []string   `json:"categories,omitempty" msgpack:"categories,omitempty"`
}

// DatasetSnapshot maps filter keys to bounds.
type DatasetSnapshot map[string]Bounds

// Snapshot maps dataset keys to their filter bounds. Datasets without filters
// are absent.
type Snapshot map[dataset.Key]DatasetSnapshot

// Builder queries the store for aggregate bounds.
type Builder struct {
	store  store.Store
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewBuilder creates a Builder. cache may be nil.
func NewBuilder(s store.Store, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{store: s, cache: c, ttl: ttl, logger: logger}
}

// Build computes the snapshot of every dataset that has filters.
// Unprivileged snapshots never include rows from restricted sources.
func (b *Builder) Build(ctx context.Context, privileged bool) (Snapshot, error) {
	snap := make(Snapshot)
	for _, k := range dataset.Keys {
		if dataset.Filters(k) == nil {
			continue
		}
		ds, err := b.Dataset(ctx, k, privileged)
		if err != nil {
			return nil, err
		}
		snap[k] = ds
	}
	return snap, nil
}

// Dataset computes (or reads from cache) the snapshot of one dataset.
func (b *Builder) Dataset(ctx context.Context, key dataset.Key, privileged bool) (DatasetSnapshot, error) {
	spec, err := dataset.Lookup(key)
	if err != nil {
		return nil, err
	}
	if spec.Filters == nil {
		return DatasetSnapshot{}, nil
	}
	if b.store == nil {
		return nil, store.ErrUnavailable
	}

	cacheKey := "populate:" + string(key) + ":" + strconv.FormatBool(privileged)
	if b.cache != nil {
		var cached DatasetSnapshot
		ok, err := b.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			b.logger.Warn("populate cache read failed", zap.String("dataset", string(key)), zap.Error(err))
		} else if ok {
			metrics.SnapshotBuildsTotal.WithLabelValues("cache").Inc()
			return cached, nil
		}
	}

	start := time.Now()
	q := &boundsQuery{ctx: ctx, spec: spec, privileged: privileged, store: b.store, logger: b.logger}
	ds := make(DatasetSnapshot, len(spec.Filters))
	for _, def := range spec.Filters {
		r := dataset.Visit[result](def, q)
		if r.err != nil {
			return nil, fmt.Errorf("populate %s.%s: %w", key, def.FilterKey(), r.err)
		}
		ds[def.FilterKey()] = r.bounds
	}

	metrics.SnapshotBuildsTotal.WithLabelValues("store").Inc()
	b.logger.Debug("populate snapshot built",
		zap.String("dataset", string(key)),
		zap.Bool("privileged", privileged),
		zap.Duration("took", time.Since(start)),
	)

	if b.cache != nil {
		if err := b.cache.Set(ctx, cacheKey, ds, b.ttl); err != nil {
			b.logger.Warn("populate cache write failed", zap.String("dataset", string(key)), zap.Error(err))
		}
	}
	return ds, nil
}

type result struct {
	bounds Bounds
	err    error
}

// boundsQuery issues one aggregate query per filter.
type boundsQuery struct {
	ctx        context.Context
	spec       *dataset.Spec
	privileged bool
	store      store.Store
	logger     *zap.Logger
}

func (q *boundsQuery) where(col string) string {
	conds := []string{col + " IS NOT NULL"}
	if !q.privileged && q.spec.Restricted != "" {
		conds = append(conds, "NOT COALESCE("+q.spec.Restricted+", FALSE)")
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// Select lists distinct categories. A failure is logged and reported as a
// nil category list rather than failing the whole snapshot.
func (q *boundsQuery) Select(d dataset.Select) result {
	sql := fmt.Sprintf("SELECT DISTINCT CAST(%s AS VARCHAR) AS category FROM %s%s ORDER BY 1",
		d.Column, q.spec.From(), q.where(d.Column))
	res, err := q.store.Query(q.ctx, sql)
	if err != nil {
		q.logger.Warn("category list unavailable",
			zap.String("dataset", string(q.spec.Key)),
			zap.String("filter", d.Key),
			zap.Error(err),
		)
		return result{}
	}
	cats := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) == 0 {
			continue
		}
		if s, ok := row[0].(string); ok && s != "" {
			cats = append(cats, s)
		}
	}
	return result{bounds: Bounds{Categories: cats}}
}

func (q *boundsQuery) numeric(col string) result {
	sql := fmt.Sprintf("SELECT CAST(min(%s) AS DOUBLE PRECISION) AS lo, CAST(max(%s) AS DOUBLE PRECISION) AS hi FROM %s%s",
		col, col, q.spec.From(), q.where(col))
	res, err := q.store.Query(q.ctx, sql)
	if err != nil {
		return result{err: err}
	}
	var b Bounds
	if len(res.Rows) > 0 && len(res.Rows[0]) >= 2 {
		b.Min = toFloat(res.Rows[0][0])
		b.Max = toFloat(res.Rows[0][1])
	}
	return result{bounds: b}
}

func (q *boundsQuery) Range(d dataset.Range) result             { return q.numeric(d.Column) }
func (q *boundsQuery) GreaterThan(d dataset.GreaterThan) result { return q.numeric(d.Column) }

func (q *boundsQuery) Date(d dataset.Date) result {
	sql := fmt.Sprintf("SELECT min(%s) AS lo, max(%s) AS hi FROM %s%s",
		d.Column, d.Column, q.spec.From(), q.where(d.Column))
	res, err := q.store.Query(q.ctx, sql)
	if err != nil {
		return result{err: err}
	}
	var b Bounds
	if len(res.Rows) > 0 && len(res.Rows[0]) >= 2 {
		b.From = toTime(res.Rows[0][0])
		b.To = toTime(res.Rows[0][1])
	}
	return result{bounds: b}
}

// Search filters have no observable bounds.
func (q *boundsQuery) Search(dataset.Search) result { return result{} }

func toFloat(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return nil
	}
	return &f
}

func toTime(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		if p, err := time.Parse(time.RFC3339, t); err == nil {
			return &p
		}
	}
	return nil
}
