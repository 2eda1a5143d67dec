package annex

import (
	"context"
	"errors"
	"testing"
)

// fakeStore records every call and fails the operations named in
// failOn. Shared by the stager and teardown tests.
type fakeStore struct {
	calls  []string
	failOn map[string]error

	// containerExists makes EnsureContainer report created=false.
	containerExists bool
}

func (f *fakeStore) fail(op string) error {
	if f.failOn == nil {
		return nil
	}
	return f.failOn[op]
}

func (f *fakeStore) EnsureContainer(ctx context.Context, name string) (bool, error) {
	f.calls = append(f.calls, "ensure "+name)
	if err := f.fail("ensure"); err != nil {
		return false, err
	}
	return !f.containerExists, nil
}

func (f *fakeStore) Put(ctx context.Context, container, key string, body []byte) (string, error) {
	f.calls = append(f.calls, "put "+container+"/"+key)
	if err := f.fail("put " + key); err != nil {
		return "", err
	}
	return "s3://" + container + "/" + key, nil
}

func (f *fakeStore) DeleteObject(ctx context.Context, container, key string) error {
	f.calls = append(f.calls, "delete-object "+container+"/"+key)
	return f.fail("delete-object " + key)
}

func (f *fakeStore) DeleteContainer(ctx context.Context, container string) error {
	f.calls = append(f.calls, "delete-container "+container)
	return f.fail("delete-container")
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestStageUploadsCredentialThenConfig(t *testing.T) {
	store := &fakeStore{}
	stager := NewSecretStager(store, nil)

	staged, err := stager.Stage(context.Background(), StagingInput{
		Container:     "stage-1",
		CredentialKey: "credential",
		Credential:    []byte("hunter2"),
		ConfigKey:     "config",
		Config:        []byte("cfg"),
	})
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	if staged.CredentialLocation != "s3://stage-1/credential" {
		t.Fatalf("credential location = %q", staged.CredentialLocation)
	}
	if staged.ConfigLocation != "s3://stage-1/config" {
		t.Fatalf("config location = %q", staged.ConfigLocation)
	}

	assertCalls(t, store.calls, []string{
		"ensure stage-1",
		"put stage-1/credential",
		"put stage-1/config",
	})

	ledger := stager.Ledger()
	if !ledger.ContainerCreated || !ledger.CredentialUploaded || !ledger.ConfigUploaded {
		t.Fatalf("ledger = %+v, want all flags set", ledger)
	}
}

func TestStageSkipsAbsentConfig(t *testing.T) {
	store := &fakeStore{}
	stager := NewSecretStager(store, nil)

	staged, err := stager.Stage(context.Background(), StagingInput{
		Container:     "stage-1",
		CredentialKey: "credential",
		Credential:    []byte("hunter2"),
		ConfigKey:     "config",
	})
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	if staged.ConfigLocation != "" {
		t.Fatalf("config location = %q, want empty", staged.ConfigLocation)
	}
	if stager.Ledger().ConfigUploaded {
		t.Fatal("config flag set without an upload")
	}
}

func TestStageRejectsMissingCredential(t *testing.T) {
	stager := NewSecretStager(&fakeStore{}, nil)

	_, err := stager.Stage(context.Background(), StagingInput{
		Container:     "stage-1",
		CredentialKey: "credential",
	})
	if !IsCategory(err, CategoryArgument) {
		t.Fatalf("error = %v, want argument category", err)
	}
}

// A config upload failure against a container this invocation created
// unwinds the credential and the container, in that order.
func TestStageFailureUnwindsInReverseOrder(t *testing.T) {
	store := &fakeStore{failOn: map[string]error{
		"put config": errors.New("throttled"),
	}}
	stager := NewSecretStager(store, nil)

	_, err := stager.Stage(context.Background(), StagingInput{
		Container:     "stage-1",
		CredentialKey: "credential",
		Credential:    []byte("hunter2"),
		ConfigKey:     "config",
		Config:        []byte("cfg"),
	})
	if !IsCategory(err, CategoryStaging) {
		t.Fatalf("error = %v, want staging category", err)
	}

	assertCalls(t, store.calls, []string{
		"ensure stage-1",
		"put stage-1/credential",
		"put stage-1/config",
		"delete-object stage-1/credential",
		"delete-container stage-1",
	})
	if !stager.Ledger().Empty() {
		t.Fatalf("ledger = %+v after full unwind, want empty", stager.Ledger())
	}
}

// With a pre-existing container, a failure right after the credential
// upload owes exactly one compensating delete.
func TestStageFailureWithExistingContainer(t *testing.T) {
	store := &fakeStore{
		containerExists: true,
		failOn:          map[string]error{"put config": errors.New("throttled")},
	}
	stager := NewSecretStager(store, nil)

	_, err := stager.Stage(context.Background(), StagingInput{
		Container:     "stage-1",
		CredentialKey: "credential",
		Credential:    []byte("hunter2"),
		ConfigKey:     "config",
		Config:        []byte("cfg"),
	})
	if err == nil {
		t.Fatal("expected staging error")
	}

	assertCalls(t, store.calls, []string{
		"ensure stage-1",
		"put stage-1/credential",
		"put stage-1/config",
		"delete-object stage-1/credential",
	})
}

func TestUnstageSecondCallIsNoOp(t *testing.T) {
	store := &fakeStore{}
	stager := NewSecretStager(store, nil)

	if _, err := stager.Stage(context.Background(), StagingInput{
		Container:     "stage-1",
		CredentialKey: "credential",
		Credential:    []byte("hunter2"),
	}); err != nil {
		t.Fatalf("Stage() error: %v", err)
	}

	if cleanupErr := stager.Unstage(context.Background()); cleanupErr != nil {
		t.Fatalf("Unstage() error: %v", cleanupErr)
	}
	deletes := len(store.calls)

	if cleanupErr := stager.Unstage(context.Background()); cleanupErr != nil {
		t.Fatalf("second Unstage() error: %v", cleanupErr)
	}
	if len(store.calls) != deletes {
		t.Fatalf("second Unstage issued deletes: %v", store.calls[deletes:])
	}
}

// A failed compensating delete is reported as orphaned, never retried,
// and a later call does not re-attempt the steps that succeeded.
func TestUnstageCollectsOrphans(t *testing.T) {
	store := &fakeStore{failOn: map[string]error{
		"delete-object credential": errors.New("access denied"),
	}}
	stager := NewSecretStager(store, nil)

	if _, err := stager.Stage(context.Background(), StagingInput{
		Container:     "stage-1",
		CredentialKey: "credential",
		Credential:    []byte("hunter2"),
		ConfigKey:     "config",
		Config:        []byte("cfg"),
	}); err != nil {
		t.Fatalf("Stage() error: %v", err)
	}

	cleanupErr := stager.Unstage(context.Background())
	if cleanupErr == nil {
		t.Fatal("expected cleanup error")
	}
	if len(cleanupErr.Orphaned) != 1 || cleanupErr.Orphaned[0] != "object stage-1/credential" {
		t.Fatalf("orphaned = %v", cleanupErr.Orphaned)
	}

	// Config delete and container delete succeeded; only the
	// credential flag survives.
	ledger := stager.Ledger()
	if !ledger.CredentialUploaded || ledger.ConfigUploaded || ledger.ContainerCreated {
		t.Fatalf("ledger = %+v, want only credential flag", ledger)
	}
}

func TestReleaseTransfersOwnership(t *testing.T) {
	store := &fakeStore{}
	stager := NewSecretStager(store, nil)

	if _, err := stager.Stage(context.Background(), StagingInput{
		Container:     "stage-1",
		CredentialKey: "credential",
		Credential:    []byte("hunter2"),
	}); err != nil {
		t.Fatalf("Stage() error: %v", err)
	}

	stager.Release()
	before := len(store.calls)

	if cleanupErr := stager.Unstage(context.Background()); cleanupErr != nil {
		t.Fatalf("Unstage() after Release error: %v", cleanupErr)
	}
	if len(store.calls) != before {
		t.Fatalf("Unstage after Release issued deletes: %v", store.calls[before:])
	}
}
