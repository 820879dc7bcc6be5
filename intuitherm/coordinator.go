package intuitherm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"
)

// fetchTimeout bounds the whole three-endpoint fetch window of one cycle.
const fetchTimeout = 10 * time.Second

// Snapshot is the merged result of one refresh cycle. A nil map means the
// corresponding fetch failed this cycle; the snapshot is replaced wholesale
// on the next cycle, never merged.
type Snapshot struct {
	LastUpdate string
	Health     map[string]any
	Control    map[string]any
	Metrics    map[string]any
}

// Coordinator drives the periodic refresh: push local readings, fetch the
// three status endpoints concurrently, merge into a Snapshot. It also
// carries the outbound control commands.
type Coordinator struct {
	client    *Client
	forwarder *Forwarder
	sensors   SensorConfig

	// Set after the first cycle's registration pass. The service creates
	// sensors implicitly on the first data push, so registration is a
	// bookkeeping hook rather than a network call.
	registered bool

	timeout time.Duration
	now     func() time.Time
}

// NewCoordinator creates a coordinator. The forwarder may be nil when no
// local sensors are configured; the push step is then skipped entirely.
func NewCoordinator(client *Client, forwarder *Forwarder, sensors SensorConfig) *Coordinator {
	return &Coordinator{
		client:    client,
		forwarder: forwarder,
		sensors:   sensors,
		timeout:   fetchTimeout,
		now:       time.Now,
	}
}

// Refresh runs one cycle and returns the merged snapshot. An individual
// endpoint failure only blanks that snapshot field; a returned error means
// the whole cycle failed and the caller should keep its previous snapshot.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	log.Println("Fetching data from IntuiTherm service")

	if !c.registered && c.forwarder != nil {
		c.registerSensors()
		c.registered = true
	}

	if c.forwarder != nil {
		if err := c.forwarder.PushReadings(ctx, c.sensors); err != nil {
			return nil, fmt.Errorf("sensor push aborted: %w", err)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	outcomes := c.fetchAll(fetchCtx)

	if err := fetchCtx.Err(); errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("timeout fetching data from service: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refresh cancelled: %w", err)
	}

	snap := &Snapshot{LastUpdate: c.now().UTC().Format(time.RFC3339)}
	snap.Health = outcomes.take("health")
	snap.Control = outcomes.take("control")
	snap.Metrics = outcomes.take("metrics")

	log.Println("Data fetch complete")
	return snap, nil
}

// fetchOutcome captures one endpoint's result, success or failure.
type fetchOutcome struct {
	payload map[string]any
	err     error
}

type fetchOutcomes map[string]fetchOutcome

// take returns the payload for name, or nil with a warning when the fetch
// failed. Absent-iff-failed is the snapshot's core invariant.
func (o fetchOutcomes) take(name string) map[string]any {
	outcome := o[name]
	if outcome.err != nil {
		log.Printf("Warning: failed to fetch %s: %v\n", name, outcome.err)
		return nil
	}
	return outcome.payload
}

// fetchAll issues the three status fetches concurrently and joins all
// outcomes. A failing fetch never cancels its siblings; only the shared
// context deadline does.
func (c *Coordinator) fetchAll(ctx context.Context) fetchOutcomes {
	fetches := []struct {
		name     string
		endpoint string
		params   url.Values
	}{
		{"health", EndpointHealth, nil},
		{"control", EndpointControlStatus, nil},
		{"metrics", EndpointMetrics, url.Values{"period_hours": {"1"}}},
	}

	var mu sync.Mutex
	outcomes := make(fetchOutcomes, len(fetches))

	var wg sync.WaitGroup
	for _, f := range fetches {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, err := c.client.GetJSON(ctx, f.endpoint, f.params)
			mu.Lock()
			outcomes[f.name] = fetchOutcome{payload: payload, err: err}
			mu.Unlock()
		}()
	}
	wg.Wait()

	return outcomes
}

// registerSensors is the one-time first-cycle hook. The service creates
// sensors automatically when the first reading arrives, so there is
// nothing to send yet; the call site and run-once guard stay so real
// registration can be added without re-plumbing the cycle.
func (c *Coordinator) registerSensors() {
	log.Println("Sensors will be auto-registered on first data send")
}
