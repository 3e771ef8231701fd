package conversation

import (
	"context"

	"github.com/cline-tools/clinekit/pkg/coreclient"
)

// StateSource fetches the latest conversation/state snapshot.
type StateSource interface {
	GetLatestState(ctx context.Context) (*coreclient.Snapshot, error)
}

// Responder releases responses back into the core service.
type Responder interface {
	SendResponse(ctx context.Context, responseType coreclient.ResponseType, text string, images, files []string) error
}

// SettingsUpdater persists auto-approval settings on the instance.
type SettingsUpdater interface {
	UpdateAutoApproval(ctx context.Context, action string) error
}

// Service is the full core surface the follower drives.
// *coreclient.Client satisfies it.
type Service interface {
	StateSource
	Responder
	SettingsUpdater
	NewTask(ctx context.Context, text string) (string, error)
	CancelTask(ctx context.Context) error
	TogglePlanActMode(ctx context.Context, mode string) error
}
