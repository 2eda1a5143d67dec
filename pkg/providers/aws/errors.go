package aws

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/poolworks/annexctl/pkg/annex"
)

// classify maps an AWS API error onto the annex error taxonomy.
func classify(err error, resourceType, resourceID string) *annex.Error {
	switch {
	case isNotFound(err):
		return annex.ErrNotFound(resourceType, resourceID).WithCause(err)
	case isConflict(err):
		return annex.ErrConflict(resourceType, resourceID).WithCause(err)
	default:
		return annex.ErrRemote("remote service call failed").
			WithCause(err).WithResource(resourceType, resourceID)
	}
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound", "NoSuchKey", "ResourceNotFoundException":
			return true
		case "ValidationError":
			// CloudFormation reports an absent stack as a validation
			// error with a "does not exist" message.
			return strings.Contains(apiErr.ErrorMessage(), "does not exist")
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}

func isConflict(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AlreadyExistsException", "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return true
		}
	}
	return false
}
