package annex

import (
	"context"

	"go.uber.org/zap"
)

// StagingInput describes the secret material to stage.
type StagingInput struct {
	// Container is the private container name, derived from the
	// (central manager, project) pair.
	Container string

	// CredentialKey and Credential are the required credential object.
	CredentialKey string
	Credential    []byte

	// ConfigKey and Config are the optional config object; a nil
	// Config skips the upload.
	ConfigKey string
	Config    []byte
}

// SecretStager stages ephemeral credential and config material into a
// private storage container ahead of stack creation, and tracks which
// of (container, credential object, config object) it currently owns.
//
// Ownership is transient: it is held until stack creation succeeds, at
// which point Release transfers deletion responsibility to the annex's
// own teardown path and any later Unstage is a no-op.
type SecretStager struct {
	store ObjectStore
	log   *zap.Logger

	container     string
	credentialKey string
	configKey     string

	ledger StagingLedger
}

// NewSecretStager creates a SecretStager.
func NewSecretStager(store ObjectStore, log *zap.Logger) *SecretStager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SecretStager{store: store, log: log}
}

// Ledger returns the current ownership flags.
func (s *SecretStager) Ledger() StagingLedger {
	return s.ledger
}

// Stage creates the container if absent, uploads the credential object
// and then the optional config object, and returns their locations.
// On failure at any sub-step it unwinds only the sub-steps that
// succeeded in this call, in strict reverse order, then fails.
func (s *SecretStager) Stage(ctx context.Context, in StagingInput) (*StagedSecrets, error) {
	if in.Container == "" {
		return nil, ErrArgument("staging container name is required")
	}
	if in.CredentialKey == "" || len(in.Credential) == 0 {
		return nil, ErrArgument("credential material is required")
	}

	s.container = in.Container
	s.credentialKey = in.CredentialKey
	s.configKey = in.ConfigKey

	created, err := s.store.EnsureContainer(ctx, in.Container)
	if err != nil {
		return nil, ErrStaging("failed to create staging container").
			WithCause(err).WithResource("container", in.Container)
	}
	s.ledger.ContainerCreated = created
	if created {
		s.log.Info("created staging container", zap.String("container", in.Container))
	}

	out := &StagedSecrets{}

	out.CredentialLocation, err = s.store.Put(ctx, in.Container, in.CredentialKey, in.Credential)
	if err != nil {
		return nil, s.failStage(ctx, ErrStaging("failed to upload credential").
			WithCause(err).WithResource("object", in.Container+"/"+in.CredentialKey))
	}
	s.ledger.CredentialUploaded = true

	if len(in.Config) > 0 {
		out.ConfigLocation, err = s.store.Put(ctx, in.Container, in.ConfigKey, in.Config)
		if err != nil {
			return nil, s.failStage(ctx, ErrStaging("failed to upload config").
				WithCause(err).WithResource("object", in.Container+"/"+in.ConfigKey))
		}
		s.ledger.ConfigUploaded = true
	}

	return out, nil
}

// failStage unwinds the sub-steps completed so far and returns the
// error the invocation should surface.
func (s *SecretStager) failStage(ctx context.Context, stepErr *Error) error {
	if cleanupErr := s.Unstage(ctx); cleanupErr != nil {
		cleanupErr.OriginalError = stepErr
		return cleanupErr
	}
	return stepErr
}

// Unstage runs the compensating deletes for everything the stager
// still owns, in strict reverse staging order: config object, then
// credential object, then container. Each step is independently gated
// by its ownership flag and the flag is cleared on success, so calling
// Unstage with no flags set is a no-op and a second call never issues
// a duplicate delete.
//
// A failed step is not retried; it is reported as a manual-cleanup
// obligation in the returned CleanupError.
func (s *SecretStager) Unstage(ctx context.Context) *CleanupError {
	var stepErrs []error
	var orphaned []string

	if s.ledger.ConfigUploaded {
		if err := s.store.DeleteObject(ctx, s.container, s.configKey); err != nil {
			stepErrs = append(stepErrs, err)
			orphaned = append(orphaned, "object "+s.container+"/"+s.configKey)
		} else {
			s.ledger.ConfigUploaded = false
		}
	}

	if s.ledger.CredentialUploaded {
		if err := s.store.DeleteObject(ctx, s.container, s.credentialKey); err != nil {
			stepErrs = append(stepErrs, err)
			orphaned = append(orphaned, "object "+s.container+"/"+s.credentialKey)
		} else {
			s.ledger.CredentialUploaded = false
		}
	}

	if s.ledger.ContainerCreated {
		if err := s.store.DeleteContainer(ctx, s.container); err != nil {
			stepErrs = append(stepErrs, err)
			orphaned = append(orphaned, "container "+s.container)
		} else {
			s.ledger.ContainerCreated = false
		}
	}

	if len(stepErrs) > 0 {
		return &CleanupError{StepErrors: stepErrs, Orphaned: orphaned}
	}
	return nil
}

// Release clears all ownership flags. It is called exactly once,
// immediately after stack creation succeeds: from that point the annex
// owns the staged material and the controller must not delete it.
func (s *SecretStager) Release() {
	s.ledger = StagingLedger{}
}
