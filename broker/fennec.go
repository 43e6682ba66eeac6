package broker

import (
	"context"
	"fmt"
	"log/slog"

	"accountsd/channel"
)

// FennecV1Name is the context name used by Firefox for Android.
const FennecV1Name = "fx-fennec-v1"

// FxFennecV1 notifies the native shell over a channel after sign-in and hands
// the user to the web-based choose-what-to-sync screen after sign-up.
type FxFennecV1 struct {
	channel channel.Channel
	caps    Capabilities
	logger  *slog.Logger
}

// NewFxFennecV1 builds the Fennec broker. The checkbox capability stays off
// regardless of overrides: the native shell owns that choice.
func NewFxFennecV1(opts Options) *FxFennecV1 {
	caps := baselineCapabilities().With(map[string]bool{
		CapabilityChooseWhatToSyncCheckbox: false,
		CapabilityChooseWhatToSyncWebV1:    true,
	})
	caps = caps.With(opts.Capabilities).With(map[string]bool{
		CapabilityChooseWhatToSyncCheckbox: false,
	})

	ch := opts.Channel
	if ch == nil {
		ch = channel.Null{}
	}

	return &FxFennecV1{
		channel: ch,
		caps:    caps,
		logger:  opts.logger(),
	}
}

func (b *FxFennecV1) Name() string { return FennecV1Name }

func (b *FxFennecV1) HasCapability(name string) bool { return b.caps.Has(name) }

// AfterForceAuth notifies the shell of the login and finishes on force_auth_complete.
func (b *FxFennecV1) AfterForceAuth(ctx context.Context, account Account) (*Directive, error) {
	if err := b.notifyLogin(ctx, account); err != nil {
		return nil, err
	}
	return navigate(EndpointForceAuthComplete), nil
}

// AfterSignIn notifies the shell of the login and finishes on signin_complete.
func (b *FxFennecV1) AfterSignIn(ctx context.Context, account Account) (*Directive, error) {
	if err := b.notifyLogin(ctx, account); err != nil {
		return nil, err
	}
	return navigate(EndpointSignInComplete), nil
}

// AfterSignUp sends the user to choose what to sync when the web screen is supported.
func (b *FxFennecV1) AfterSignUp(ctx context.Context, account Account) (*Directive, error) {
	if b.HasCapability(CapabilityChooseWhatToSyncWebV1) {
		return navigate(EndpointChooseWhatToSync), nil
	}
	return nil, nil
}

func (b *FxFennecV1) AfterSignUpConfirmationPoll(ctx context.Context, account Account) (*Directive, error) {
	return navigate(EndpointSignUpComplete), nil
}

// BeforeSignUpConfirmationPoll tells the shell about the unverified login so it
// can start polling too. The web flow keeps going.
func (b *FxFennecV1) BeforeSignUpConfirmationPoll(ctx context.Context, account Account) (*Directive, error) {
	if err := b.notifyLogin(ctx, account); err != nil {
		return nil, err
	}
	return proceed(), nil
}

// OpenSyncPreferences asks the shell to open its native sync settings.
func (b *FxFennecV1) OpenSyncPreferences(ctx context.Context) (*Directive, error) {
	if err := b.channel.Send(ctx, MessageSyncPreferences, struct{}{}); err != nil {
		return nil, fmt.Errorf("send %s: %w", MessageSyncPreferences, err)
	}
	return nil, nil
}

func (b *FxFennecV1) notifyLogin(ctx context.Context, account Account) error {
	if err := b.channel.Send(ctx, MessageLogin, NewLoginData(account)); err != nil {
		b.logger.Warn("login notification failed", "broker", FennecV1Name, "error", err)
		return fmt.Errorf("send %s: %w", MessageLogin, err)
	}
	b.logger.Debug("login notification sent", "broker", FennecV1Name, "uid", account.UID)
	return nil
}
