package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-hazard/internal/logger"
	"github.com/joeblew999/plat-hazard/internal/metrics"
)

// Image names inside the archive.
const (
	CombinedImage = "combined_map.png"
	BasemapImage  = "basemap.png"
)

// LayerImage returns the archive name of the n-th layer group, counting from 1.
func LayerImage(n int) string { return fmt.Sprintf("layer_%d.png", n) }

// ErrRenderTimeout is returned when the view does not become idle in time.
var ErrRenderTimeout = errors.New("map did not finish rendering")

// View is a map that renders asynchronously.
type View interface {
	// Groups returns the layer groups currently shown, in draw order.
	Groups() []string
	// SetVisible shows or hides one layer group and starts a redraw.
	SetVisible(group string, visible bool)
	// Idle returns a channel closed once the redraw in progress, if any,
	// has completed.
	Idle() <-chan struct{}
	// Capture encodes the current frame.
	Capture(ctx context.Context) ([]byte, error)
}

// Image is one captured frame.
type Image struct {
	Name string
	Data []byte
}

// MapImages captures the combined map, the basemap alone and each shown
// layer group alone, in that order. Every capture waits for the view to
// become idle first, for at most timeout. The original visibility is
// restored before returning, also on failure.
func MapImages(ctx context.Context, view View, timeout time.Duration) (images []Image, err error) {
	start := time.Now()
	groups := view.Groups()
	log := logger.FromContext(ctx, nil)

	defer func() {
		for _, g := range groups {
			view.SetVisible(g, true)
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
			if errors.Is(err, ErrRenderTimeout) {
				outcome = "timeout"
			}
		}
		metrics.MapExportDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		log.Info("map export finished",
			zap.String("outcome", outcome),
			zap.Int("groups", len(groups)),
			zap.Duration("took", time.Since(start)),
		)
	}()

	capture := func(name string) error {
		if err := waitIdle(ctx, view, timeout); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		data, err := view.Capture(ctx)
		if err != nil {
			return fmt.Errorf("capture %s: %w", name, err)
		}
		images = append(images, Image{Name: name, Data: data})
		return nil
	}

	if err := capture(CombinedImage); err != nil {
		return nil, err
	}

	for _, g := range groups {
		view.SetVisible(g, false)
	}
	if err := capture(BasemapImage); err != nil {
		return nil, err
	}

	prev := ""
	for i, g := range groups {
		if prev != "" {
			view.SetVisible(prev, false)
		}
		view.SetVisible(g, true)
		prev = g
		if err := capture(LayerImage(i + 1)); err != nil {
			return nil, err
		}
	}
	return images, nil
}

func waitIdle(ctx context.Context, view View, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-view.Idle():
		return nil
	case <-timer.C:
		return ErrRenderTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
