package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/metric"
)

func TestCarouselNavigation(t *testing.T) {
	c, err := New(nil, 0, 0)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	steps := []struct {
		name string
		move func()
		want metric.Metric
	}{
		{"initial", func() {}, metric.Temperature},
		{"next", c.Next, metric.Humidity},
		{"next", c.Next, metric.Ambient},
		{"next", c.Next, metric.Barometer},
		{"next wraps", c.Next, metric.Temperature},
		{"prev wraps", c.Prev, metric.Barometer},
		{"prev", c.Prev, metric.Ambient},
	}

	for _, step := range steps {
		step.move()
		if got := c.Current(); got != step.want {
			t.Fatalf("%s: Current() = %v, want %v", step.name, got, step.want)
		}
	}
}

func TestCarouselState(t *testing.T) {
	c, err := New([]metric.Metric{metric.Barometer, metric.Temperature}, 1024, 600)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.RefreshDate(now)

	v := c.State()
	if v.Metric != metric.Barometer || v.Unit != "hPa" || v.Index != 0 || v.Count != 2 {
		t.Errorf("State() = %+v", v)
	}
	if v.Width != 1024 || v.Height != 600 {
		t.Errorf("size = %dx%d, want 1024x600", v.Width, v.Height)
	}
	if !v.Date.Equal(now) {
		t.Errorf("Date = %v, want %v", v.Date, now)
	}
}

func TestCarouselDefaults(t *testing.T) {
	c, err := New(nil, -1, 0)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	v := c.State()
	if v.Width != DefaultWidth || v.Height != DefaultHeight || v.Count != metric.Count {
		t.Errorf("State() = %+v", v)
	}
}

func TestCarouselRejectsUnknownMetric(t *testing.T) {
	if _, err := New([]metric.Metric{metric.Metric(7)}, 0, 0); !errors.Is(err, metric.ErrUnknownMetric) {
		t.Errorf("New() error = %v, want ErrUnknownMetric", err)
	}
}

func TestCarouselOnChange(t *testing.T) {
	c, _ := New(nil, 0, 0)

	var views []View
	c.SetOnChange(func(v View) { views = append(views, v) })

	c.Next()
	c.RefreshDate(time.Unix(0, 0))
	c.Prev()

	if len(views) != 3 {
		t.Fatalf("callbacks = %d, want 3", len(views))
	}
	if views[0].Metric != metric.Humidity || views[2].Metric != metric.Temperature {
		t.Errorf("views = %+v", views)
	}
}
