// Package lifecycle implements the user-facing applet actions: clearing
// persisted data and replacing an applet from a recorded change request.
package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/appletsync/internal/client"
	"github.com/GriffinCanCode/appletsync/internal/shared/types"
)

// API is the subset of the applet server used by lifecycle actions.
// *client.Client satisfies it.
type API interface {
	DeleteStorage(ctx context.Context, id types.AppletID) error
	Replace(ctx context.Context, id types.AppletID, audio client.Audio) (types.AppletID, error)
	Create(ctx context.Context, audio client.Audio) (types.AppletID, error)
}

// Actions runs lifecycle requests against an applet server
type Actions struct {
	api    API
	logger *zap.Logger
}

// New creates lifecycle actions
func New(api API, logger *zap.Logger) *Actions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Actions{api: api, logger: logger}
}

// ClearData empties the applet's server-side storage. The outcome is only
// logged; the running applet picks up the change on its next poll.
func (a *Actions) ClearData(ctx context.Context, id types.AppletID) {
	if err := a.api.DeleteStorage(ctx, id); err != nil {
		a.logger.Error("Failed to clear applet data", zap.String("applet", id.String()), zap.Error(err))
		return
	}
	a.logger.Info("Applet data cleared", zap.String("applet", id.String()))
}

// Replace submits a recorded change request for id and returns the
// identifier of the generated replacement
func (a *Actions) Replace(ctx context.Context, id types.AppletID, audio client.Audio) (types.AppletID, error) {
	next, err := a.api.Replace(ctx, id, audio)
	if err != nil {
		return "", fmt.Errorf("replace applet %s: %w", id, err)
	}
	a.logger.Info("Applet replaced", zap.String("applet", id.String()), zap.String("replacement", next.String()))
	return next, nil
}

// Create submits a recorded request for a brand new applet
func (a *Actions) Create(ctx context.Context, audio client.Audio) (types.AppletID, error) {
	id, err := a.api.Create(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("create applet: %w", err)
	}
	a.logger.Info("Applet created", zap.String("applet", id.String()))
	return id, nil
}
