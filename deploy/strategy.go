package deploy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Rotator rotates a service deployment. The two implementations form a
// closed set selected by Config.Mode; a run never switches strategy
// based on what it finds in the control plane.
type Rotator interface {
	Rotate(ctx context.Context) error
}

// NewRotator builds the rotation strategy for the configured mode.
func NewRotator(cfg Config, clients *AWSClients, logger zerolog.Logger) (Rotator, error) {
	switch cfg.Mode {
	case ModePinned:
		return &PinnedRotation{
			cfg:       cfg,
			locator:   NewImageLocator(clients),
			clients:   clients,
			repointer: NewRepointer(clients, cfg),
			logger:    logger,
		}, nil
	case ModeFloating:
		return &FloatingRotation{
			cfg:       cfg,
			repointer: NewRepointer(clients, cfg),
			logger:    logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// PinnedRotation is the full rotation path: resolve the newest pushed
// image, derive a candidate task definition, register it as a new
// revision and repoint the service at that revision.
type PinnedRotation struct {
	cfg       Config
	locator   *ImageLocator
	clients   *AWSClients
	repointer *Repointer
	logger    zerolog.Logger
}

// Rotate runs the pinned path. Stages execute strictly in order and any
// failure aborts the run, leaving the service on its prior revision.
func (p *PinnedRotation) Rotate(ctx context.Context) error {
	imageRef, err := p.locator.Locate(ctx, p.cfg.Repository())
	if err != nil {
		return err
	}
	p.logger.Info().Str("image", imageRef).Msg("resolved newest image")

	doc, err := p.clients.TaskDefs.FetchTaskDocument(ctx, p.cfg.TaskFamily())
	if err != nil {
		return err
	}

	candidate, err := NewCandidate(doc, imageRef)
	if err != nil {
		return err
	}

	revision, err := p.clients.TaskDefs.RegisterRevision(ctx, candidate)
	if err != nil {
		return err
	}
	p.logger.Info().
		Str("family", p.cfg.TaskFamily()).
		Int32("revision", revision).
		Msg("registered task definition revision")

	if err := p.repointer.Pin(ctx, p.cfg.TaskFamily(), revision); err != nil {
		// The new revision stays registered but unused.
		p.logger.Warn().
			Int32("revision", revision).
			Msg("revision registered but service not repointed")
		return err
	}
	p.logger.Info().
		Str("service", p.cfg.ServiceName()).
		Int32("revision", revision).
		Msg("service repointed")
	return nil
}

// FloatingRotation is the light rotation path for mutable image tags: no
// registry query and no new revision, just a forced redeployment so the
// scheduler re-pulls the tag.
type FloatingRotation struct {
	cfg       Config
	repointer *Repointer
	logger    zerolog.Logger
}

// Rotate requests a forced redeployment of the current revision.
func (f *FloatingRotation) Rotate(ctx context.Context) error {
	if err := f.repointer.ForceRedeploy(ctx); err != nil {
		return err
	}
	f.logger.Info().
		Str("service", f.cfg.ServiceName()).
		Str("tag", f.cfg.FloatingTag).
		Msg("forced new deployment")
	return nil
}
