package transcription

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
)

const ServiceType = "transcription"

// Selection is the provider picked by the usage rotation in the system of record.
type Selection struct {
	Provider           string  `json:"provider"`
	DisplayName        string  `json:"displayName"`
	FreeUnitsRemaining float64 `json:"freeUnitsRemaining"`
	IsUsingFreeTier    bool    `json:"isUsingFreeTier"`
	CostPerUnit        float64 `json:"costPerUnit"`
	UnitType           string  `json:"unitType"`
}

type ProviderSelector interface {
	SelectProvider(ctx context.Context, serviceType string) (*Selection, error)
}

type UsageRecorder interface {
	RecordUsage(ctx context.Context, serviceType, provider string, units int) error
}

// Service picks a provider for each transcription and books the minutes it used.
type Service struct {
	registry *Registry
	priority []string
	forced   string
	selector ProviderSelector
	usage    UsageRecorder
	log      *log.Logger
	now      func() time.Time
}

func NewService(registry *Registry, selector ProviderSelector, usage UsageRecorder, logger *log.Logger) *Service {
	return &Service{
		registry: registry,
		priority: DefaultPriority,
		selector: selector,
		usage:    usage,
		log:      logger,
		now:      time.Now,
	}
}

// SetPriority overrides the fallback order used when the rotation query has no answer.
func (s *Service) SetPriority(names []string) {
	if s == nil || len(names) == 0 {
		return
	}
	s.priority = append([]string(nil), names...)
}

// ForceProvider pins every transcription to name, skipping the rotation. An empty name restores it.
func (s *Service) ForceProvider(name string) {
	if s == nil {
		return
	}
	s.forced = strings.TrimSpace(name)
}

func (s *Service) Transcribe(ctx context.Context, audioFilePath string) (Result, error) {
	if s == nil || s.registry == nil {
		return Result{}, ErrNoProvider
	}
	if s.forced != "" {
		s.logf("[Transcription] provider=%s source=forced", s.forced)
		return s.TranscribeWith(ctx, audioFilePath, s.forced)
	}

	var name string
	if sel := s.selectProvider(ctx); sel != nil {
		name = sel.Provider
		s.logf("[Transcription] provider=%s source=rotation free_minutes_remaining=%.0f", name, sel.FreeUnitsRemaining)
	} else {
		p, ok := s.registry.FirstConfigured(s.priority)
		if !ok {
			return Result{}, ErrNoProvider
		}
		name = p.Name()
		s.logf("[Transcription] provider=%s source=fallback", name)
	}

	p, ok := s.registry.Get(name)
	if !ok || !p.Configured() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return s.run(ctx, p, audioFilePath)
}

// TranscribeWith bypasses the rotation and uses the named provider.
func (s *Service) TranscribeWith(ctx context.Context, audioFilePath, providerName string) (Result, error) {
	if s == nil || s.registry == nil {
		return Result{}, ErrNoProvider
	}
	p, ok := s.registry.Get(providerName)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
	if !p.Configured() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotConfigured, providerName)
	}
	return s.run(ctx, p, audioFilePath)
}

func (s *Service) run(ctx context.Context, p Provider, audioFilePath string) (Result, error) {
	start := s.now()
	res, err := p.Transcribe(ctx, audioFilePath)
	if err != nil {
		s.logf("[Transcription] provider=%s status=error err=%v", p.Name(), err)
		return Result{}, err
	}
	res.Provider = p.Name()
	s.logf("[Transcription] provider=%s status=done elapsed=%s audio_minutes=%.2f", p.Name(), s.now().Sub(start), res.DurationMinutes)

	s.recordUsage(ctx, p.Name(), res.DurationMinutes)
	return res, nil
}

func (s *Service) selectProvider(ctx context.Context) *Selection {
	if s.selector == nil {
		return nil
	}
	sel, err := s.selector.SelectProvider(ctx, ServiceType)
	if err != nil {
		s.logf("[Transcription] status=select_failed err=%v", err)
		return nil
	}
	if sel == nil || strings.TrimSpace(sel.Provider) == "" {
		return nil
	}
	return sel
}

// recordUsage never fails the transcription; the minutes are rounded up.
func (s *Service) recordUsage(ctx context.Context, provider string, minutes float64) {
	if s.usage == nil {
		return
	}
	units := int(math.Ceil(minutes))
	if err := s.usage.RecordUsage(ctx, ServiceType, provider, units); err != nil {
		s.logf("[Transcription] provider=%s status=usage_failed units=%d err=%v", provider, units, err)
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
