package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"pocketd/internal/executil"
	"pocketd/internal/registry"
	"pocketd/pkg/types"
)

// Install runs the engine's model_install and waits for it without a
// timeout; a partial download is worse than a slow one.
func (m *Manager) Install(ctx context.Context, model string) types.OperationResponse {
	resp := m.modelOp(ctx, "install", callInstall, model, "installed")
	m.installed.Invalidate()
	return resp
}

// Remove runs the engine's model_remove, also without a timeout.
func (m *Manager) Remove(ctx context.Context, model string) types.OperationResponse {
	resp := m.modelOp(ctx, "remove", callRemove, model, "removed")
	m.invalidate()
	return resp
}

func (m *Manager) modelOp(ctx context.Context, op, call, model, verb string) types.OperationResponse {
	model = strings.TrimSpace(model)
	if model == "" {
		return types.OperationResponse{Success: false, Message: ErrEmptyModel.Error()}
	}
	log := zerolog.Ctx(ctx).With().Str("op", op).Str("model", model).Logger()
	log.Info().Msg("engine op start")
	res := executil.Run(ctx, m.engineRequest(call, 0, model))
	log.Info().Bool("ok", res.Succeeded).Int("exit", res.ExitCode).Dur("took", res.Duration).Msg("engine op done")
	m.publisher.Publish(Event{Name: "model_" + verb, Model: model, Fields: map[string]any{"success": res.Succeeded}})
	msg := res.Output
	if msg == "" {
		msg = fmt.Sprintf("Model %s %s", model, verb)
	}
	return types.OperationResponse{Success: res.Succeeded, Message: msg}
}

// Use activates an installed model. The name is resolved against the models
// directory (exact file name, name without extension, then prefix). When the
// engine defines model_activate it is called with the name and the resolved
// file; a failure there is reported like a failed install. If the engine does
// not define it, or defines it but leaves active_model untouched, the
// resolved path is stored as active_model. Both caches are invalidated either way.
//
// A model that is not installed yields a failed response together with an
// error wrapping ErrModelNotInstalled.
func (m *Manager) Use(ctx context.Context, model string) (types.OperationResponse, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return types.OperationResponse{Message: ErrEmptyModel.Error()}, ErrEmptyModel
	}
	models, err := m.scanInstalled()
	if err != nil {
		return types.OperationResponse{}, err
	}
	found, ok := registry.Resolve(models, model)
	if !ok {
		return types.OperationResponse{Message: fmt.Sprintf("Model %s is not installed", model)},
			fmt.Errorf("%w: %s", ErrModelNotInstalled, model)
	}
	log := zerolog.Ctx(ctx).With().Str("op", "use").Str("model", model).Logger()
	before, _, err := m.store.Get(ActiveModelKey)
	if err != nil {
		return types.OperationResponse{}, fmt.Errorf("read active model: %w", err)
	}

	res := executil.Run(ctx, m.engineRequest(callActivate, 0, model, found.Path))
	defer m.invalidate()
	msg := fmt.Sprintf("Model %s activated", model)
	switch {
	case res.ExitCode == exitNoActivate:
		log.Debug().Msg("engine has no model_activate; activating natively")
	case !res.Succeeded:
		log.Warn().Int("exit", res.ExitCode).Str("output", res.Output).Msg("engine activation failed")
		m.publisher.Publish(Event{Name: "model_activated", Model: model, Fields: map[string]any{"success": false}})
		if res.Output != "" {
			msg = res.Output
		} else {
			msg = fmt.Sprintf("Model %s activation failed", model)
		}
		return types.OperationResponse{Message: msg}, nil
	case res.Output != "":
		msg = res.Output
	}

	after, _, err := m.store.Get(ActiveModelKey)
	if err != nil {
		return types.OperationResponse{}, fmt.Errorf("read active model: %w", err)
	}
	if res.ExitCode == exitNoActivate || after == before {
		if err := m.store.Set(ActiveModelKey, found.Path); err != nil {
			return types.OperationResponse{}, fmt.Errorf("persist active model: %w", err)
		}
	}
	log.Info().Str("file", found.Name).Msg("model activated")
	m.publisher.Publish(Event{Name: "model_activated", Model: model, Fields: map[string]any{"file": found.Name, "success": true}})
	return types.OperationResponse{Success: true, Message: msg}, nil
}

// Config returns the persisted key/value configuration.
func (m *Manager) Config() (map[string]string, error) {
	return m.store.All()
}

// SetConfig persists key=value. Writing active_model invalidates the caches
// that depend on it. An empty key is what a missing or malformed body decodes
// to; it writes nothing and is not an error.
func (m *Manager) SetConfig(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		zerolog.Ctx(ctx).Debug().Msg("config set without key ignored")
		return nil
	}
	if err := m.store.Set(key, value); err != nil {
		return err
	}
	if key == ActiveModelKey {
		m.invalidate()
	}
	zerolog.Ctx(ctx).Debug().Str("key", key).Msg("config set")
	m.publisher.Publish(Event{Name: "config_set", Fields: map[string]any{"key": key}})
	return nil
}
