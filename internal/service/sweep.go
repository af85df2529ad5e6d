package service

import (
	"context"
	"errors"
	"fmt"

	sb "spectrum_bridge"
	"spectrum_bridge/internal/repository"
)

// Device limits for the 7-digit kHz command fields.
const maxEncodableMHz = 9999.999

var (
	errInvalidRange = errors.New("invalid range: start_mhz must be >= 0 and < end_mhz")
)

// SweepService drives the analyzer session and persists span changes so a
// restarted bridge resumes with the last configured sweep.
type SweepService struct {
	sess       SessionController
	configRepo repository.ConfigRepo
}

func NewSweepService(sess SessionController, configRepo repository.ConfigRepo) *SweepService {
	return &SweepService{sess: sess, configRepo: configRepo}
}

// Start puts the device into continuous sweep mode.
func (s *SweepService) Start(ctx context.Context) error {
	return s.sess.StartSweep()
}

// Stop holds the device; already-buffered sweeps still flow through the
// pipeline.
func (s *SweepService) Stop(ctx context.Context) error {
	return s.sess.StopSweep()
}

// SetRange validates and applies a span change, then persists it.
func (s *SweepService) SetRange(ctx context.Context, p RangeParams) error {
	if p.StartMHz < 0 || p.EndMHz <= p.StartMHz {
		return errInvalidRange
	}
	if p.EndMHz > maxEncodableMHz {
		return fmt.Errorf("end_mhz %.3f exceeds encodable maximum %.3f", p.EndMHz, maxEncodableMHz)
	}
	if err := s.sess.SetFrequencyRange(p.StartMHz, p.EndMHz); err != nil {
		return err
	}

	cfg := s.sess.Config()
	cfg.StartFreqMHz = p.StartMHz
	cfg.EndFreqMHz = p.EndMHz
	return s.configRepo.Save(ctx, cfg)
}

// RequestConfig asks the device to report its configuration; the decoded
// reply updates the session via the pipeline.
func (s *SweepService) RequestConfig(ctx context.Context) error {
	return s.sess.RequestConfig()
}

// ResetAggregates clears max-hold and the moving average.
func (s *SweepService) ResetAggregates(ctx context.Context) error {
	s.sess.ResetAggregates()
	return nil
}

// baselineSnapshot is what Monitoring serves before the first sweep.
func baselineSnapshot(cfg sb.SweepConfig) sb.SpectrumSnapshot {
	return sb.SpectrumSnapshot{
		Samples: []sb.SpectrumSample{},
		Peaks:   []sb.SpectrumSample{},
		Config:  cfg,
	}
}

// MonitoringService serves the latest processed snapshot and the session
// status.
type MonitoringService struct {
	sess SessionController
}

func NewMonitoringService(sess SessionController) *MonitoringService {
	return &MonitoringService{sess: sess}
}

// GetSnapshot returns the most recent snapshot, or an empty baseline when
// no sweep has been decoded yet.
func (s *MonitoringService) GetSnapshot(ctx context.Context) (sb.SpectrumSnapshot, error) {
	if snap, ok := s.sess.Latest(); ok {
		return snap, nil
	}
	return baselineSnapshot(s.sess.Config()), nil
}

// GetStatus reports connection state, current config and data availability.
func (s *MonitoringService) GetStatus(ctx context.Context) (Status, error) {
	_, hasData := s.sess.Latest()
	return Status{
		ConnectionState: s.sess.State().String(),
		Config:          s.sess.Config(),
		HasData:         hasData,
	}, nil
}
