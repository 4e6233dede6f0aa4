package metrics

import (
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterLabels(t *testing.T) {
	c := NewCounter("frames_total", "Frames")
	assert.Zero(t, c.Get(nil))

	c.Inc(nil)
	c.Add(nil, 10)
	c.Inc(Labels{"board": "1"})
	c.Inc(Labels{"board": "0"})
	c.Inc(Labels{"board": "0"})

	assert.Equal(t, uint64(11), c.Get(nil))
	assert.Equal(t, uint64(2), c.Get(Labels{"board": "0"}))
	assert.Equal(t, uint64(1), c.Get(Labels{"board": "1"}))
	assert.Zero(t, c.Get(Labels{"board": "2"}))

	var sb strings.Builder
	c.Write(&sb)
	assert.Equal(t, "# HELP frames_total Frames\n"+
		"# TYPE frames_total counter\n"+
		"frames_total 11\n"+
		"frames_total{board=\"0\"} 2\n"+
		"frames_total{board=\"1\"} 1\n", sb.String())
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("ticks_total", "Ticks")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc(Labels{"joint": "0"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(8000), c.Get(Labels{"joint": "0"}))
}

func TestGaugeSetAndFormat(t *testing.T) {
	g := NewGauge("position_rad", "Position")
	g.Set(Labels{"joint": "0"}, 1.5)
	g.Set(Labels{"joint": "0"}, -0.25)
	g.Set(Labels{"joint": "1"}, math.Inf(1))

	assert.Equal(t, -0.25, g.Get(Labels{"joint": "0"}))
	assert.Zero(t, g.Get(Labels{"joint": "7"}))

	var sb strings.Builder
	g.Write(&sb)
	out := sb.String()
	assert.Contains(t, out, "# TYPE position_rad gauge\n")
	assert.Contains(t, out, "position_rad{joint=\"0\"} -0.25\n")
	assert.Contains(t, out, "position_rad{joint=\"1\"} +Inf\n")
}

func TestLabelEscaping(t *testing.T) {
	l := Labels{"msg": "a \"b\"\nc\\", "a": "x"}
	assert.Equal(t, `{a="x",msg="a \"b\"\nc\\"}`, l.String())
	assert.Equal(t, "", Labels(nil).String())
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("tick_seconds", "Tick", []float64{0.004, 0.001, 0.002})
	for _, v := range []float64{0.0005, 0.001, 0.0015, 0.003, 0.01} {
		h.Observe(nil, v)
	}

	snap := h.Snapshot(nil)
	assert.Equal(t, uint64(5), snap.Count)
	assert.InDelta(t, 0.016, snap.Sum, 1e-12)
	assert.Equal(t, map[float64]uint64{0.001: 2, 0.002: 3, 0.004: 4}, snap.Buckets)

	var sb strings.Builder
	h.Write(&sb)
	out := sb.String()
	assert.Contains(t, out, "tick_seconds_bucket{le=\"0.001\"} 2\n")
	assert.Contains(t, out, "tick_seconds_bucket{le=\"+Inf\"} 5\n")
	assert.Contains(t, out, "tick_seconds_count 5\n")

	empty := h.Snapshot(Labels{"joint": "0"})
	assert.Zero(t, empty.Count)
}

func TestExponentialBuckets(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 4, 8}, ExponentialBuckets(1, 2, 4))
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewGauge("b", "B")))
	require.NoError(t, r.Register(NewCounter("a", "A")))
	assert.Error(t, r.Register(NewCounter("a", "again")))
	assert.Panics(t, func() { r.MustRegister(NewGauge("b", "again")) })

	assert.Equal(t, "a", r.Get("a").Name())
	assert.Nil(t, r.Get("missing"))

	out := r.Gather()
	assert.Less(t, strings.Index(out, "# HELP b"), strings.Index(out, "# HELP a"))
}
