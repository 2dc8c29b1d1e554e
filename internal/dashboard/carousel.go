package dashboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/metric"
)

// Default display size in pixels.
const (
	DefaultWidth  = 800
	DefaultHeight = 480
)

// View is the state a renderer needs to draw the current screen.
type View struct {
	Metric metric.Metric `json:"metric"`
	Unit   string        `json:"unit"`
	Index  int           `json:"index"`
	Count  int           `json:"count"`
	Date   time.Time     `json:"date"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
}

// Carousel cycles the displayed chart through a fixed list of metrics.
//
// It is driven by the scheduler (rotation and date ticks) and by manual
// navigation. Rendering is left to whoever reads State or listens via
// SetOnChange.
type Carousel struct {
	mu      sync.RWMutex
	metrics []metric.Metric
	index   int
	date    time.Time
	width   int
	height  int

	onChange   func(View)
	callbackMu sync.RWMutex
}

// New creates a Carousel showing the first of metrics. An empty list
// selects every metric in poll order; non-positive sizes take the defaults.
func New(metrics []metric.Metric, width, height int) (*Carousel, error) {
	if len(metrics) == 0 {
		metrics = metric.All()
	}
	for _, m := range metrics {
		if !m.Valid() {
			return nil, fmt.Errorf("dashboard: %w: %d", metric.ErrUnknownMetric, int(m))
		}
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Carousel{
		metrics: append([]metric.Metric(nil), metrics...),
		width:   width,
		height:  height,
		date:    time.Now(),
	}, nil
}

// Next advances to the following chart, wrapping at the end.
func (c *Carousel) Next() {
	c.step(1)
}

// Prev goes back to the previous chart, wrapping at the start.
func (c *Carousel) Prev() {
	c.step(-1)
}

func (c *Carousel) step(delta int) {
	c.mu.Lock()
	n := len(c.metrics)
	c.index = ((c.index+delta)%n + n) % n
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
}

// RefreshDate updates the date shown with the chart.
func (c *Carousel) RefreshDate(now time.Time) {
	c.mu.Lock()
	c.date = now
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
}

// Current returns the metric on screen.
func (c *Carousel) Current() metric.Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics[c.index]
}

// State returns a copy of the current view.
func (c *Carousel) State() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewLocked()
}

func (c *Carousel) viewLocked() View {
	m := c.metrics[c.index]
	return View{
		Metric: m,
		Unit:   m.Unit(),
		Index:  c.index,
		Count:  len(c.metrics),
		Date:   c.date,
		Width:  c.width,
		Height: c.height,
	}
}

// SetOnChange sets a callback invoked after every view change. The
// callback runs on the caller's goroutine and must not block.
func (c *Carousel) SetOnChange(callback func(View)) {
	c.callbackMu.Lock()
	c.onChange = callback
	c.callbackMu.Unlock()
}

func (c *Carousel) notify(v View) {
	c.callbackMu.RLock()
	callback := c.onChange
	c.callbackMu.RUnlock()

	if callback != nil {
		callback(v)
	}
}
