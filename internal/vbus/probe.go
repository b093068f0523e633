package vbus

import (
	"context"

	"go.uber.org/zap"
)

// ProbeTries is how many consecutive unchanged batches end a probe.
const ProbeTries = 5

// ProbeStep describes one batch seen during a probe.
type ProbeStep struct {
	Signature Signature
	Packets   int
	Tries     int
}

// ProbeReport is the outcome of Probe.
type ProbeReport struct {
	// Packets counts how often the batch signature changed, which
	// approximates how many distinct packet sets the controller cycles.
	Packets int
	Steps   []ProbeStep
}

// Probe reads batches and tracks header signatures only, to estimate the
// value for ExpectedPackets. It stops after ProbeTries consecutive repeats.
// onStep, if non-nil, is called after every batch.
func Probe(ctx context.Context, src ByteSource, log *zap.Logger, onStep func(ProbeStep)) (ProbeReport, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sync := NewSynchronizer(src)

	var (
		report ProbeReport
		last   Signature
		tries  int
	)
	for tries < ProbeTries {
		frames, err := sync.Next(ctx)
		if err != nil {
			return report, err
		}
		current := SignatureOf(frames)
		switch {
		case last.Empty():
			last = current
			report.Packets++
		case last.Equal(current):
			tries++
		default:
			report.Packets++
			tries = 0
			last = current
		}

		step := ProbeStep{Signature: current, Packets: report.Packets, Tries: tries}
		report.Steps = append(report.Steps, step)
		log.Debug("probe step",
			zap.Stringer("signature", current),
			zap.Int("packets", report.Packets),
			zap.Int("tries", tries))
		if onStep != nil {
			onStep(step)
		}
	}
	return report, nil
}
