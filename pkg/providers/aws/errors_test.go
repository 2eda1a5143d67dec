package aws

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"

	"github.com/poolworks/annexctl/pkg/annex"
)

func TestClassifyNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bucket", &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "no such bucket"}},
		{"generic 404 code", &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}},
		{"cloudformation absent stack", &smithy.GenericAPIError{
			Code:    "ValidationError",
			Message: "Stack with id annex-abc123 does not exist",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, "stack", "annex-abc123")
			if !annex.IsCategory(err, annex.CategoryNotFound) {
				t.Fatalf("classify(%v) = %v, want not_found", tt.err, err)
			}
			if !errors.Is(err, tt.err) {
				t.Fatal("classified error does not wrap the cause")
			}
		})
	}
}

func TestClassifyValidationErrorIsNotAlwaysNotFound(t *testing.T) {
	apiErr := &smithy.GenericAPIError{
		Code:    "ValidationError",
		Message: "Parameters: [TotalSize] must have values",
	}
	if annex.IsCategory(classify(apiErr, "stack", "annex-abc123"), annex.CategoryNotFound) {
		t.Fatal("parameter validation error misread as an absent stack")
	}
}

func TestClassifyConflict(t *testing.T) {
	for _, code := range []string{"AlreadyExistsException", "BucketAlreadyOwnedByYou", "BucketAlreadyExists"} {
		apiErr := &smithy.GenericAPIError{Code: code}
		if !annex.IsCategory(classify(apiErr, "container", "stage-1"), annex.CategoryConflict) {
			t.Fatalf("code %q not classified as a conflict", code)
		}
	}
}

func TestClassifyFallsBackToRemote(t *testing.T) {
	err := classify(errors.New("connection reset"), "stack", "annex-abc123")
	if !annex.IsCategory(err, annex.CategoryRemote) {
		t.Fatalf("classify() = %v, want remote category", err)
	}
}
