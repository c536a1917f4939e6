package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/kryptik-dev/omni/internal/live"
	"github.com/kryptik-dev/omni/internal/observe"
)

// DispatcherOption configures a [Dispatcher] during construction.
type DispatcherOption func(*Dispatcher)

// WithMetrics wires tool-call counters and latency histograms.
func WithMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher is the concurrent-safe capability registry and tool-call
// execution loop.
//
// Invariant: every [live.ToolCall] passed to [Dispatcher.Dispatch] produces
// exactly one [live.ToolResult] with the same ID and Name — unknown names,
// missing arguments, handler errors, and handler panics all yield an error
// result rather than silence, since an unanswered call stalls the remote
// turn indefinitely.
type Dispatcher struct {
	mu      sync.RWMutex
	caps    map[string]Capability
	metrics *observe.Metrics
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{caps: make(map[string]Capability)}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Register adds c to the registry, replacing any capability with the same
// name.
func (d *Dispatcher) Register(c Capability) error {
	if c.Definition.Name == "" {
		return fmt.Errorf("capability: definition must have a non-empty name")
	}
	if c.Handler == nil {
		return fmt.Errorf("capability: %q must have a non-nil handler", c.Definition.Name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps[c.Definition.Name] = c
	return nil
}

// RegisterAll registers each capability in order, stopping at the first
// error.
func (d *Dispatcher) RegisterAll(caps []Capability) error {
	for _, c := range caps {
		if err := d.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Manifest returns the declared tool definitions sorted by name, ready for
// the connect-time setup payload.
func (d *Dispatcher) Manifest() []live.ToolDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]live.ToolDefinition, 0, len(d.caps))
	for _, c := range d.caps {
		out = append(out, live.ToolDefinition{
			Name:        c.Definition.Name,
			Description: c.Definition.Description,
			Parameters:  c.Definition.Parameters,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch executes every call in the batch and hands each result to emit
// as it completes. Calls run concurrently and independently: results may
// arrive out of order relative to each other — correlation is solely by
// call ID. Dispatch returns when all results have been emitted.
//
// emit may be called from multiple goroutines and must be safe for
// concurrent use.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []live.ToolCall, emit func(live.ToolResult)) {
	var g errgroup.Group
	for _, call := range calls {
		g.Go(func() error {
			emit(d.execute(ctx, call))
			return nil
		})
	}
	_ = g.Wait()
}

// execute runs one call to completion, converting every failure mode into
// an error result.
func (d *Dispatcher) execute(ctx context.Context, call live.ToolCall) (res live.ToolResult) {
	res = live.ToolResult{ID: call.ID, Name: call.Name}

	d.mu.RLock()
	c, ok := d.caps[call.Name]
	names := make([]string, 0, len(d.caps))
	for name := range d.caps {
		names = append(names, name)
	}
	d.mu.RUnlock()

	if !ok {
		reason := fmt.Sprintf("unknown capability %q", call.Name)
		if suggestion := nearestName(call.Name, names); suggestion != "" {
			reason += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}
		res.Error = reason
		d.record(call.Name, 0, false)
		return res
	}

	if missing := missingArgs(c.Definition, call.Args); len(missing) > 0 {
		res.Error = fmt.Sprintf("missing required arguments: %v", missing)
		d.record(call.Name, 0, false)
		return res
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("capability panicked", "capability", call.Name, "panic", r)
			res.Response = nil
			res.Error = fmt.Sprintf("capability %q failed: internal error", call.Name)
		}
		d.record(call.Name, time.Since(start), res.Error == "")
	}()

	response, err := c.Handler(ctx, call.Args)
	if err != nil {
		slog.Warn("capability failed", "capability", call.Name, "err", err)
		res.Error = err.Error()
		return res
	}
	if response == nil {
		response = map[string]any{}
	}
	res.Response = response
	return res
}

// missingArgs returns the schema-required argument names absent from args.
func missingArgs(def Definition, args map[string]any) []string {
	var missing []string
	for _, name := range def.Required() {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// record updates the tool-call metrics, if configured.
func (d *Dispatcher) record(name string, dur time.Duration, ok bool) {
	if d.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", name),
		attribute.String("status", status),
	)
	d.metrics.ToolCalls.Add(context.Background(), 1, attrs)
	if dur > 0 {
		d.metrics.ToolExecutionDuration.Record(context.Background(), dur.Seconds(), attrs)
	}
}
