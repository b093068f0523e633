// Package reader runs complete read cycles: open the configured transport,
// decode until the session ends, close the transport.
package reader

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/vbusreader/internal/transport"
	"github.com/shaunagostinho/vbusreader/internal/vbus"
)

// Reading is the outcome of one read cycle.
type Reading struct {
	Result vbus.Result `json:"result"`
	// Complete is false when the repetitive packet guard ended the read
	// before every expected device was seen.
	Complete bool      `json:"complete"`
	Stamp    time.Time `json:"stamp"`
}

// Settings are the per-read options.
type Settings struct {
	Transport         transport.Config
	ExpectedPackets   int
	RepetitivePackets int
	UseUnits          bool
	Debug             bool
}

// Opener opens a byte source; transport.Open in production.
type Opener func(ctx context.Context, cfg transport.Config, log *zap.Logger) (transport.Source, error)

// Reader performs read cycles against one catalog.
type Reader struct {
	settings Settings
	catalog  *vbus.Catalog
	open     Opener
	log      *zap.Logger
}

func New(settings Settings, catalog *vbus.Catalog, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{
		settings: settings,
		catalog:  catalog,
		open:     transport.Open,
		log:      log,
	}
}

// WithOpener replaces the transport factory.
func (r *Reader) WithOpener(open Opener) *Reader {
	r.open = open
	return r
}

// Read connects, collects one result set and disconnects.
func (r *Reader) Read(ctx context.Context) (Reading, error) {
	src, err := r.open(ctx, r.settings.Transport, r.log)
	if err != nil {
		return Reading{}, err
	}
	defer src.Close()
	r.log.Debug("reading", zap.String("source", src.Name()))

	s := vbus.NewSession(src, r.catalog, vbus.Options{
		ExpectedPackets:   r.settings.ExpectedPackets,
		RepetitivePackets: r.settings.RepetitivePackets,
		UseUnits:          r.settings.UseUnits,
		Debug:             r.settings.Debug,
		Logger:            r.log.Named("session"),
	})
	res, err := s.Run(ctx)
	reading := Reading{
		Result:   res,
		Complete: s.State() == vbus.StateComplete,
		Stamp:    time.Now(),
	}
	if err != nil {
		return reading, fmt.Errorf("reading %s: %w", src.Name(), err)
	}
	if s.State() == vbus.StateAborted {
		r.log.Warn("repetitive packets, returning partial result",
			zap.Int("devices", len(res)),
			zap.Int("expected", r.settings.ExpectedPackets))
	}
	return reading, nil
}

// Probe connects and counts the distinct packet sets on the bus.
func (r *Reader) Probe(ctx context.Context, onStep func(vbus.ProbeStep)) (vbus.ProbeReport, error) {
	src, err := r.open(ctx, r.settings.Transport, r.log)
	if err != nil {
		return vbus.ProbeReport{}, err
	}
	defer src.Close()
	return vbus.Probe(ctx, src, r.log.Named("probe"), onStep)
}
