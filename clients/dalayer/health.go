package dalayer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	// DefaultHealthInterval is how often the background monitor probes.
	DefaultHealthInterval = 30 * time.Second

	healthPath = "/health"
)

// HealthChecker monitors whether the DA layer answers its health endpoint.
type HealthChecker struct {
	client   *retryablehttp.Client
	endpoint string
	interval time.Duration
	logger   *zap.SugaredLogger

	status struct {
		mu          sync.Mutex
		healthy     bool
		reason      string
		lastChecked time.Time
	}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthChecker creates a checker for the DA layer at baseURL. A
// non-positive interval uses DefaultHealthInterval.
func NewHealthChecker(baseURL string, client *retryablehttp.Client, interval time.Duration, logger *zap.SugaredLogger) *HealthChecker {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	hc := &HealthChecker{
		client:   client,
		endpoint: trimBase(baseURL) + healthPath,
		interval: interval,
		logger:   logger.Named("dalayer_health"),
	}
	hc.status.reason = "not checked yet"
	return hc
}

func trimBase(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

// Start runs an initial check and then monitors in the background until ctx
// is done or Stop is called.
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.logger.Infow("starting DA layer health checker", "endpoint", hc.endpoint, "interval", hc.interval)

	ctx, cancel := context.WithCancel(ctx)
	hc.cancel = cancel
	hc.done = make(chan struct{})

	// Initial check
	hc.updateStatus(ctx)

	// Monitor in background
	go hc.monitor(ctx)
}

// Stop halts monitoring and waits for the monitor to exit.
func (hc *HealthChecker) Stop() {
	if hc.cancel != nil {
		hc.cancel()
		<-hc.done
	}
}

// Healthy reports the last observed status and, when unhealthy, why.
func (hc *HealthChecker) Healthy() (bool, string) {
	hc.status.mu.Lock()
	defer hc.status.mu.Unlock()
	return hc.status.healthy, hc.status.reason
}

// Check probes the endpoint once.
func (hc *HealthChecker) Check(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, hc.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := hc.client.Do(req)
	if resp == nil {
		return fmt.Errorf("fetch health status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// monitor runs the background monitoring loop
func (hc *HealthChecker) monitor(ctx context.Context) {
	defer close(hc.done)
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hc.updateStatus(ctx)
		}
	}
}

func (hc *HealthChecker) updateStatus(ctx context.Context) {
	err := hc.Check(ctx)
	if ctx.Err() != nil {
		return
	}

	hc.status.mu.Lock()
	defer hc.status.mu.Unlock()

	wasHealthy := hc.status.healthy
	hc.status.lastChecked = time.Now()
	if err != nil {
		hc.status.healthy = false
		hc.status.reason = err.Error()
		hc.logger.Warnw("DA layer unhealthy", "error", err)
		return
	}
	hc.status.healthy = true
	hc.status.reason = ""
	if !wasHealthy {
		hc.logger.Infow("DA layer healthy")
	}
}
