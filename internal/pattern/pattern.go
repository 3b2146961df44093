// Package pattern generates irregular, human-looking commit timestamps
// inside a bounded time window.
package pattern

import (
	"math/rand/v2"
	"slices"
	"time"
)

// Window is the half-open interval [Start, Start+Duration) that a schedule
// must fall into.
type Window struct {
	Start    time.Time
	Duration time.Duration
}

// End returns Start+Duration.
func (w Window) End() time.Time {
	return w.Start.Add(w.Duration)
}

// Contains reports whether t lies within [Start, End], inclusive of the end
// edge so jittered values landing exactly on it are kept.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End())
}

// Config controls the shape of a generated schedule. Zero-valued tuning
// fields fall back to the Default* constants.
type Config struct {
	MinCount  int
	MaxCount  int
	Randomize bool

	GapMin        time.Duration
	GapMax        time.Duration
	ClusterChance float64 // negative disables clustering
	ClusterMin    int
	ClusterMax    int
	ClusterGapMin time.Duration
	ClusterGapMax time.Duration
	Jitter        time.Duration // negative disables jitter
}

const (
	DefaultGapMin        = 10 * time.Minute
	DefaultGapMax        = 45 * time.Minute
	DefaultClusterChance = 0.2
	DefaultClusterMin    = 2
	DefaultClusterMax    = 4
	DefaultClusterGapMin = 1 * time.Minute
	DefaultClusterGapMax = 5 * time.Minute
	DefaultJitter        = 120 * time.Second

	gapFactorMin = 0.7
	gapFactorMax = 1.3
)

func (c Config) withDefaults() Config {
	if c.GapMin <= 0 {
		c.GapMin = DefaultGapMin
	}
	if c.GapMax < c.GapMin {
		c.GapMax = max(DefaultGapMax, c.GapMin)
	}
	if c.ClusterChance < 0 {
		c.ClusterChance = 0
	} else if c.ClusterChance == 0 {
		c.ClusterChance = DefaultClusterChance
	}
	if c.ClusterMin <= 0 {
		c.ClusterMin = DefaultClusterMin
	}
	if c.ClusterMax < c.ClusterMin {
		c.ClusterMax = max(DefaultClusterMax, c.ClusterMin)
	}
	if c.ClusterGapMin <= 0 {
		c.ClusterGapMin = DefaultClusterGapMin
	}
	if c.ClusterGapMax < c.ClusterGapMin {
		c.ClusterGapMax = max(DefaultClusterGapMax, c.ClusterGapMin)
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	} else if c.Jitter == 0 {
		c.Jitter = DefaultJitter
	}
	if c.MinCount < 0 {
		c.MinCount = 0
	}
	if c.MaxCount < c.MinCount {
		c.MaxCount = c.MinCount
	}
	return c
}

// Generator produces commit schedules. It holds no state besides its
// configuration and random source; it is not safe for concurrent use
// because *rand.Rand is not.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// New returns a Generator seeded from the runtime's random source.
func New(cfg Config) *Generator {
	return NewWithRand(cfg, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// NewWithRand returns a Generator drawing from rng.
func NewWithRand(cfg Config, rng *rand.Rand) *Generator {
	return &Generator{cfg: cfg.withDefaults(), rng: rng}
}

// Config returns the effective configuration after defaults.
func (g *Generator) Config() Config {
	return g.cfg
}

// Generate returns an ascending schedule inside w. Its length is exactly
// MaxCount when randomization is off, otherwise a uniform draw from
// [MinCount, MaxCount].
func (g *Generator) Generate(w Window) []time.Time {
	if w.Duration <= 0 || g.cfg.MaxCount == 0 {
		return []time.Time{}
	}
	if !g.cfg.Randomize {
		return evenlySpaced(w, g.cfg.MaxCount)
	}

	target := g.cfg.MinCount + g.rng.IntN(g.cfg.MaxCount-g.cfg.MinCount+1)
	if target == 0 {
		return []time.Time{}
	}

	times := g.walk(w, target)

	for len(times) < target {
		times = append(times, w.Start.Add(g.uniform(0, w.Duration)))
	}
	times = times[:target]
	slices.SortFunc(times, time.Time.Compare)

	for i, t := range times {
		jittered := t.Add(g.uniform(-g.cfg.Jitter, g.cfg.Jitter))
		if w.Contains(jittered) {
			times[i] = jittered
		}
	}
	// Jitter can swap close neighbours inside a cluster.
	slices.SortFunc(times, time.Time.Compare)

	return times
}

// walk steps forward from the window start with randomized gaps, sometimes
// emitting a tight cluster, until target is reached or the window ends.
func (g *Generator) walk(w Window, target int) []time.Time {
	times := make([]time.Time, 0, target)
	end := w.End()
	current := w.Start

	for len(times) < target && current.Before(end) {
		if g.rng.Float64() < g.cfg.ClusterChance {
			size := g.cfg.ClusterMin + g.rng.IntN(g.cfg.ClusterMax-g.cfg.ClusterMin+1)
			for range size {
				if len(times) >= target || !current.Before(end) {
					break
				}
				times = append(times, current)
				current = current.Add(g.uniform(g.cfg.ClusterGapMin, g.cfg.ClusterGapMax))
			}
			continue
		}

		times = append(times, current)
		base := g.uniform(g.cfg.GapMin, g.cfg.GapMax)
		factor := gapFactorMin + g.rng.Float64()*(gapFactorMax-gapFactorMin)
		current = current.Add(time.Duration(float64(base) * factor))
	}

	return times
}

// uniform draws a duration from [lo, hi).
func (g *Generator) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(g.rng.Int64N(int64(hi-lo)))
}

func evenlySpaced(w Window, n int) []time.Time {
	times := make([]time.Time, n)
	step := w.Duration / time.Duration(n)
	for i := range n {
		times[i] = w.Start.Add(time.Duration(i) * step)
	}
	return times
}
