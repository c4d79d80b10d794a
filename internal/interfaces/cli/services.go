package cli

import (
	"context"
	"fmt"

	"github.com/jhoicas/siga-gateway/internal/application/container"
	"github.com/jhoicas/siga-gateway/internal/application/signing"
	"github.com/jhoicas/siga-gateway/internal/domain/repository"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/hashcode"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/idp"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/memory"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/metrics"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/pebble"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/postgres"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/xades"
	apphttp "github.com/jhoicas/siga-gateway/internal/interfaces/http"
	"github.com/jhoicas/siga-gateway/pkg/config"
)

// services casos de uso cableados contra el almacén configurado.
type services struct {
	store      repository.SessionRepository
	pinger     apphttp.Pinger // nil si el almacén vive en el proceso
	recorder   *metrics.Recorder
	containers *container.UseCase
	signing    *signing.Orchestrator
	close      func()
}

func (a *app) services(ctx context.Context) (*services, error) {
	store, pinger, closeStore, err := openStore(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	mid, err := newProvider(a.cfg.MobileID)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("Mobile-ID: %w", err)
	}
	sid, err := newProvider(a.cfg.SmartID)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("Smart-ID: %w", err)
	}

	recorder := metrics.NewRecorder()
	codec := hashcode.NewCodec(
		hashcode.WithMaxContainerSize(a.cfg.Container.MaxSizeBytes),
		hashcode.WithMaxEntrySize(a.cfg.Container.MaxEntryBytes),
	)
	return &services{
		store:      store,
		pinger:     pinger,
		recorder:   recorder,
		containers: container.NewUseCase(store, codec, a.log, container.WithEvents(recorder)),
		signing:    signing.NewOrchestrator(store, xades.NewBuilder(), mid, sid, recorder, a.log),
		close:      closeStore,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.SessionRepository, apphttp.Pinger, func(), error) {
	switch cfg.Session.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		repo := postgres.NewSessionRepository(pool)
		return repo, repo, pool.Close, nil
	case config.BackendPebble:
		repo, err := pebble.Open(cfg.Pebble.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, nil, func() { _ = repo.Close() }, nil
	default:
		return memory.NewSessionRepository(nil), nil, func() {}, nil
	}
}

// newProvider devuelve nil (canal deshabilitado) si el canal no tiene URL configurada.
func newProvider(cfg config.ProviderConfig) (signing.IdentityProvider, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return idp.NewClient(idp.Config{
		BaseURL:          cfg.BaseURL,
		RelyingPartyName: cfg.RelyingPartyName,
		RelyingPartyUUID: cfg.RelyingPartyUUID,
		Timeout:          cfg.Timeout(),
		RequestsPerSec:   cfg.PollRPS,
	})
}
