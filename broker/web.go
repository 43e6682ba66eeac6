package broker

import (
	"context"
	"log/slog"
)

// WebName is the context name of the baseline broker.
const WebName = "web"

// Web is the baseline broker used by plain browser sign-ins. It never talks to
// a host shell and leaves most navigation decisions to the view.
type Web struct {
	caps   Capabilities
	logger *slog.Logger
}

// NewWeb builds the baseline broker with optional capability overrides.
func NewWeb(opts Options) *Web {
	return &Web{
		caps:   baselineCapabilities().With(opts.Capabilities),
		logger: opts.logger(),
	}
}

func (b *Web) Name() string { return WebName }

func (b *Web) HasCapability(name string) bool { return b.caps.Has(name) }

func (b *Web) AfterForceAuth(ctx context.Context, account Account) (*Directive, error) {
	return nil, nil
}

func (b *Web) AfterSignIn(ctx context.Context, account Account) (*Directive, error) {
	return nil, nil
}

func (b *Web) AfterSignUp(ctx context.Context, account Account) (*Directive, error) {
	if b.HasCapability(CapabilityChooseWhatToSyncWebV1) {
		return navigate(EndpointChooseWhatToSync), nil
	}
	return nil, nil
}

func (b *Web) AfterSignUpConfirmationPoll(ctx context.Context, account Account) (*Directive, error) {
	return navigate(EndpointSignUpComplete), nil
}

func (b *Web) BeforeSignUpConfirmationPoll(ctx context.Context, account Account) (*Directive, error) {
	return proceed(), nil
}

func (b *Web) OpenSyncPreferences(ctx context.Context) (*Directive, error) {
	b.logger.Debug("sync preferences requested without a host channel", "broker", WebName)
	return nil, nil
}
