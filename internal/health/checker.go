package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/loadbalancer"
	"github.com/wudi/portway/internal/logging"
)

// TargetsFunc returns the current target set of an upstream. The checker
// re-reads it every tick so targets added or removed at runtime are picked
// up without restarting the checker.
type TargetsFunc func() []*loadbalancer.Target

// Checker runs periodic active health checks against the targets of one
// upstream. A target flips to unhealthy only after unhealthy_threshold
// consecutive failed probes, and back to healthy only after
// healthy_threshold consecutive passing probes. Flips are applied to the
// target directly so the balancer sees them on its next snapshot.
type Checker struct {
	upstream string
	cfg      config.HealthCheckConfig
	targets  TargetsFunc
	client   *http.Client

	mu     sync.Mutex
	states map[string]*probeState

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// OnChange is invoked after a target flips state. Optional.
	OnChange func(upstream string, target *loadbalancer.Target, healthy bool)
}

type probeState struct {
	consecutivePass int
	consecutiveFail int
}

// NewChecker creates a checker for one upstream. Call Start to begin probing.
func NewChecker(upstream string, cfg config.HealthCheckConfig, targets TargetsFunc) *Checker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Checker{
		upstream: upstream,
		cfg:      cfg,
		targets:  targets,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// A 3xx probe response counts as up on its own; never follow it.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		states: make(map[string]*probeState),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the probe loop. It probes once immediately, then on every
// interval tick until Stop is called.
func (c *Checker) Start() {
	go c.loop()
}

// Stop cancels in-flight probes and waits for the loop to exit.
func (c *Checker) Stop() {
	c.cancel()
	<-c.done
}

func (c *Checker) loop() {
	defer close(c.done)

	c.checkAll()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.checkAll()
		}
	}
}

// checkAll probes every current target concurrently and waits for the
// tick's probes to finish before returning.
func (c *Checker) checkAll() {
	targets := c.targets()

	c.prune(targets)

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(t *loadbalancer.Target) {
			defer wg.Done()
			c.probe(t)
		}(target)
	}
	wg.Wait()
}

// prune drops counter state for targets no longer in the set.
func (c *Checker) prune(targets []*loadbalancer.Target) {
	current := make(map[string]bool, len(targets))
	for _, t := range targets {
		current[t.Name()] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.states {
		if !current[name] {
			delete(c.states, name)
		}
	}
}

func (c *Checker) probe(target *loadbalancer.Target) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL()+c.cfg.Path, nil)
	if err != nil {
		c.record(target, false)
		return
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.record(target, false)
		return
	}
	resp.Body.Close()

	up := resp.StatusCode >= 200 && resp.StatusCode < 400
	c.record(target, up)
}

// record applies threshold logic and flips the target when a threshold
// is crossed.
func (c *Checker) record(target *loadbalancer.Target, up bool) {
	c.mu.Lock()

	state, ok := c.states[target.Name()]
	if !ok {
		state = &probeState{}
		c.states[target.Name()] = state
	}

	flipped := false
	if up {
		state.consecutiveFail = 0
		state.consecutivePass++
		if !target.Healthy() && state.consecutivePass >= c.cfg.HealthyThreshold {
			target.SetHealthy(true)
			flipped = true
		}
	} else {
		state.consecutivePass = 0
		state.consecutiveFail++
		if target.Healthy() && state.consecutiveFail >= c.cfg.UnhealthyThreshold {
			target.SetHealthy(false)
			flipped = true
		}
	}
	c.mu.Unlock()

	if flipped {
		logging.Info("target health changed",
			zap.String("upstream", c.upstream),
			zap.String("target", target.Name()),
			zap.Bool("healthy", up))

		if c.OnChange != nil {
			c.OnChange(c.upstream, target, up)
		}
	}
}
