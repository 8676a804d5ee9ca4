package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-hazard/internal/auth"
	"github.com/joeblew999/plat-hazard/internal/dataset"
	"github.com/joeblew999/plat-hazard/internal/layers"
	"github.com/joeblew999/plat-hazard/internal/logger"
	"github.com/joeblew999/plat-hazard/internal/metrics"
	"github.com/joeblew999/plat-hazard/internal/query"
	"github.com/joeblew999/plat-hazard/internal/state"
)

// LoadOutcome is the result of one submission.
type LoadOutcome struct {
	Result query.Result
	Ticket state.Ticket
	// Applied is false when a newer submission of the same dataset was made
	// while this one ran; the session kept the newer state.
	Applied bool
}

// Load runs one dataset load for sess. The session's drawn region applies
// when the request carries no drawing of its own. Every submission is
// tracked with a ticket so only the latest one lands in the session.
func (svc *Services) Load(ctx context.Context, sess *state.Session, key dataset.Key, req query.Request) LoadOutcome {
	log := logger.FromContext(ctx, svc.Logger)
	if !hasDrawing(req.Drawing) {
		if region := sess.Region(); region != nil {
			raw, err := json.Marshal(geojson.NewGeometry(region))
			if err != nil {
				log.Warn("drawn region not applied", zap.Error(err))
			} else {
				req.Drawing = raw
			}
		}
	}

	privileged := auth.Privileged(ctx)
	t := sess.BeginLoad(key)
	res := svc.Executor.LoadDataset(ctx, key, req, privileged)

	var applied bool
	if res.Success {
		applied = sess.CompleteLoad(t, &state.Loaded{
			Collection: res.Data.GeoJSON,
			Units:      res.Data.Units,
			Metadata:   res.Data.Metadata,
			Request:    req,
			Privileged: privileged,
		})
	} else {
		applied = sess.FailLoad(t, res.Error)
	}
	if !applied {
		metrics.DatasetLoadsTotal.WithLabelValues(string(key), "superseded").Inc()
		log.Debug("superseded load discarded", zap.String("dataset", string(key)), zap.String("ticket", t.ID))
	}
	return LoadOutcome{Result: res, Ticket: t, Applied: applied}
}

func hasDrawing(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

// observed returns the extent of the colour property of a loaded dataset.
func observed(key dataset.Key, l *state.Loaded) *[2]float64 {
	prop := layers.ColorProperty(key)
	if l == nil || prop == "" {
		return nil
	}
	return query.Extent(l.Collection, prop)
}
