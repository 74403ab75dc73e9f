package healthkit

import (
	"context"

	"github.com/wondertwin-ai/healthbridge/internal/bridge"
)

// Bridge is the host-side view of the four bridge operations. The HTTP
// client satisfies it directly; InProcess adapts a local HealthBridge.
type Bridge interface {
	RequestAuthorization(ctx context.Context, scopes []string) (bridge.Envelope, error)
	ReadData(ctx context.Context, opts bridge.ReadOptions) (bridge.ReadResult, error)
	CheckAppStatus(ctx context.Context) (bridge.AppStatus, error)
	OpenApp(ctx context.Context) (bridge.Envelope, error)
}

type inProcess struct {
	b *bridge.HealthBridge
}

// InProcess adapts a HealthBridge. Its methods never return an error.
func InProcess(b *bridge.HealthBridge) Bridge {
	return inProcess{b: b}
}

func (p inProcess) RequestAuthorization(ctx context.Context, scopes []string) (bridge.Envelope, error) {
	return p.b.RequestAuthorization(ctx, scopes), nil
}

func (p inProcess) ReadData(ctx context.Context, opts bridge.ReadOptions) (bridge.ReadResult, error) {
	return p.b.ReadData(ctx, opts), nil
}

func (p inProcess) CheckAppStatus(ctx context.Context) (bridge.AppStatus, error) {
	return p.b.CheckAppStatus(ctx), nil
}

func (p inProcess) OpenApp(ctx context.Context) (bridge.Envelope, error) {
	return p.b.OpenApp(ctx), nil
}
