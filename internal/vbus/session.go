package vbus

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Result maps a device display name to its decoded fields.
type Result map[string]map[string]string

// State is the lifecycle stage of a Session.
type State int

const (
	StateReading State = iota
	StateComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateComplete:
		return "complete"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options controls a read session.
type Options struct {
	// ExpectedPackets is the number of distinct devices to collect before
	// the session completes.
	ExpectedPackets int
	// RepetitivePackets aborts the session after this many consecutive
	// batches with an unchanged signature. Zero disables the guard.
	RepetitivePackets int
	// UseUnits appends the field unit to decoded values.
	UseUnits bool
	// Debug logs frame dumps at debug level.
	Debug  bool
	Logger *zap.Logger
}

// Session reads one result set from a source. It is not safe for
// concurrent use; run one Session per source.
type Session struct {
	sync    *Synchronizer
	catalog *Catalog
	opts    Options
	log     *zap.Logger

	result  Result
	last    Signature
	repeats int
	state   State
}

func NewSession(src ByteSource, catalog *Catalog, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		sync:    NewSynchronizer(src),
		catalog: catalog,
		opts:    opts,
		log:     log,
		result:  Result{},
		state:   StateReading,
	}
}

func (s *Session) State() State { return s.state }

// Run reads batches until ExpectedPackets devices have been decoded or the
// repetitive packet guard trips. Both end states return the accumulated
// result with a nil error. A source error or cancelled ctx returns the
// partial result together with the error.
func (s *Session) Run(ctx context.Context) (Result, error) {
	for len(s.result) < s.opts.ExpectedPackets {
		frames, err := s.sync.Next(ctx)
		if err != nil {
			return s.result, err
		}
		s.log.Debug("batch read", zap.Int("messages", len(frames)), zap.Int("devices", len(s.result)))

		if s.repeated(frames) {
			s.state = StateAborted
			s.log.Debug("repetitive packets, giving up",
				zap.Int("repeats", s.repeats), zap.Stringer("signature", s.last))
			return s.result, nil
		}

		for _, f := range frames {
			s.handle(f)
		}
	}
	s.state = StateComplete
	return s.result, nil
}

// repeated applies the repetitive packet guard to a batch and reports
// whether the threshold was reached.
func (s *Session) repeated(frames []RawFrame) bool {
	if s.opts.RepetitivePackets <= 0 {
		return false
	}
	current := SignatureOf(frames)
	if !s.last.Empty() && s.last.Equal(current) {
		s.repeats++
		s.log.Debug("repetitive packet detected", zap.Stringer("signature", current), zap.Int("repeats", s.repeats))
		return s.repeats >= s.opts.RepetitivePackets
	}
	s.repeats = 0
	s.last = current
	return false
}

func (s *Session) handle(f RawFrame) {
	h, err := DecodeHeader(f)
	if err != nil {
		s.log.Debug("dropping frame", zap.Error(err))
		return
	}
	switch h.Version {
	case PV1:
		if s.opts.Debug {
			s.log.Debug("pv1 message\n" + DumpPV1(f, s.catalog))
		}
		s.merge(f, h)
	case PV2:
		if s.opts.Debug {
			s.log.Debug("pv2 message\n" + DumpPV2(f))
		}
	default:
		s.log.Debug("skipping message", zap.Stringer("version", h.Version), zap.String("source", h.SourceString()))
	}
}

func (s *Session) merge(f RawFrame, h Header) {
	payload, err := DecodePayload(f, h)
	if err != nil {
		s.log.Debug("dropping frame", zap.String("source", h.SourceString()), zap.Error(err))
		return
	}
	p, ok := s.catalog.MatchPacket(h)
	if !ok {
		s.log.Debug("message not found in specs",
			zap.String("source", h.SourceString()),
			zap.String("destination", h.DestinationString()),
			zap.String("command", h.CommandString()))
		return
	}
	name := s.catalog.ResolveDevice(h.SourceString())
	s.result[name] = DecodeFields(p, payload, s.opts.UseUnits)
}
