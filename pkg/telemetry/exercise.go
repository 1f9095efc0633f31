package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/discovery"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// ExerciseConfig configures ExerciseMethods.
type ExerciseConfig struct {
	// Delay is waited after each call before re-reading.
	Delay time.Duration

	// Brightness is the level sent with SetBrightness.
	Brightness int

	// Out receives progress lines. Nil discards them.
	Out io.Writer
}

// DefaultExerciseConfig returns the demonstration settings.
func DefaultExerciseConfig() ExerciseConfig {
	return ExerciseConfig{Delay: DefaultExerciseDelay, Brightness: DefaultDemoBrightness}
}

// StepResult is the outcome of one step of the demonstration sequence.
type StepResult struct {
	Device string
	Step   string

	// Value is the value read by read steps.
	Value string

	Err error
}

// OK reports whether the step succeeded.
func (s StepResult) OK() bool { return s.Err == nil }

// ExerciseMethods drives the demonstration sequence. The dimmable device is
// the first with a Brightness node; the non-dimmable one is the first with
// TurnOn but no Brightness. Every step is reported; failures do not stop the
// sequence.
func (c *Client) ExerciseMethods(ctx context.Context, reg *discovery.Registry, config ExerciseConfig) []StepResult {
	out := config.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintln(out, "\n=== METHOD TEST ===")

	ex := &exercise{c: c, cfg: config, out: out}
	dimmable, plain := pickDevices(reg)

	if dimmable == nil {
		ex.report(StepResult{Step: "select dimmable", Err: ErrNoDevice})
	} else {
		fmt.Fprintf(out, "\n--- %s ---\n", dimmable.Name)
		ex.call(ctx, dimmable, discovery.NodeTurnOff)
		ex.wait(ctx)
		ex.readBack(ctx, dimmable, discovery.NodeState)

		if level, err := wire.NewVariant(config.Brightness); err != nil {
			ex.report(StepResult{Device: dimmable.Prefix, Step: discovery.NodeSetBrightness, Err: err})
		} else {
			ex.call(ctx, dimmable, discovery.NodeSetBrightness, level)
		}
		ex.wait(ctx)
		ex.readBack(ctx, dimmable, discovery.NodeBrightness)
		ex.readBack(ctx, dimmable, discovery.NodeState)
	}

	if plain == nil {
		ex.report(StepResult{Step: "select standard", Err: ErrNoDevice})
	} else {
		fmt.Fprintf(out, "\n--- %s ---\n", plain.Name)
		ex.call(ctx, plain, discovery.NodeTurnOn)
		ex.wait(ctx)
		ex.readBack(ctx, plain, discovery.NodeState)
	}

	return ex.results
}

func pickDevices(reg *discovery.Registry) (dimmable, plain *discovery.Entry) {
	for _, e := range reg.Entries() {
		_, hasBrightness := e.Node(discovery.NodeBrightness)
		_, hasMethod := e.Node(discovery.NodeTurnOn)
		switch {
		case hasBrightness && dimmable == nil:
			dimmable = e
		case !hasBrightness && hasMethod && plain == nil:
			plain = e
		}
	}
	return dimmable, plain
}

type exercise struct {
	c       *Client
	cfg     ExerciseConfig
	out     io.Writer
	results []StepResult
}

func (x *exercise) report(r StepResult) {
	x.results = append(x.results, r)
	switch {
	case r.Err != nil && r.Device == "":
		fmt.Fprintf(x.out, "%s: %v\n", r.Step, r.Err)
	case r.Err != nil:
		fmt.Fprintf(x.out, "%s %s failed: %v\n", r.Device, r.Step, r.Err)
	case r.Value != "":
		fmt.Fprintf(x.out, "%s %s: %s\n", r.Device, r.Step, r.Value)
	default:
		fmt.Fprintf(x.out, "%s %s: success\n", r.Device, r.Step)
	}
}

func (x *exercise) call(ctx context.Context, e *discovery.Entry, method string, args ...wire.Variant) {
	step := method
	if len(args) > 0 {
		step = fmt.Sprintf("%s(%s)", method, args[0])
	}
	r := StepResult{Device: e.Prefix, Step: step}

	id, ok := e.Node(method)
	if !ok {
		r.Err = fmt.Errorf("%w: %s", ErrNotResolved, method)
		x.report(r)
		return
	}
	if _, err := x.c.conn.Call(ctx, e.Object(), id, args...); err != nil {
		x.c.logger.Warn("call failed", "device", e.Prefix, "method", method, "error", err)
		r.Err = err
	}
	x.report(r)
}

// wait ignores cancellation errors; the next step reports them.
func (x *exercise) wait(ctx context.Context) {
	_ = sleep(ctx, x.cfg.Delay)
}

func (x *exercise) readBack(ctx context.Context, e *discovery.Entry, name string) {
	r := StepResult{Device: e.Prefix, Step: "read " + name}
	dv, err := x.c.read(ctx, e, name)
	if err != nil {
		r.Err = err
	} else {
		r.Value = FormatValue(dv)
	}
	x.report(r)
}
