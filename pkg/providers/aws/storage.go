package aws

import (
	"bytes"
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/poolworks/annexctl/pkg/annex"
)

// StorageService implements annex.ObjectStore on S3.
type StorageService struct {
	client *s3.Client
	region string
}

// EnsureContainer implements annex.ObjectStore. Fresh containers get a
// public-access block before any object lands in them.
func (s *StorageService) EnsureContainer(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: awssdk.String(name)})
	if err == nil {
		return false, nil
	}
	if !isNotFound(err) {
		return false, classify(err, "container", name)
	}

	input := &s3.CreateBucketInput{Bucket: awssdk.String(name)}
	// us-east-1 rejects an explicit location constraint.
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		cerr := classify(err, "container", name)
		if annex.IsCategory(cerr, annex.CategoryConflict) {
			// Lost a race with another creator; the container exists.
			return false, nil
		}
		return false, cerr
	}

	_, err = s.client.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: awssdk.String(name),
		PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       awssdk.Bool(true),
			BlockPublicPolicy:     awssdk.Bool(true),
			IgnorePublicAcls:      awssdk.Bool(true),
			RestrictPublicBuckets: awssdk.Bool(true),
		},
	})
	if err != nil {
		return true, classify(err, "container", name)
	}
	return true, nil
}

// Put implements annex.ObjectStore.
func (s *StorageService) Put(ctx context.Context, container, key string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: awssdk.String(container),
		Key:    awssdk.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return "", classify(err, "object", container+"/"+key)
	}
	return fmt.Sprintf("s3://%s/%s", container, key), nil
}

// DeleteObject implements annex.ObjectStore. Deleting an absent object
// succeeds.
func (s *StorageService) DeleteObject(ctx context.Context, container, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: awssdk.String(container),
		Key:    awssdk.String(key),
	})
	if err != nil && !isNotFound(err) {
		return classify(err, "object", container+"/"+key)
	}
	return nil
}

// DeleteContainer implements annex.ObjectStore.
func (s *StorageService) DeleteContainer(ctx context.Context, container string) error {
	_, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: awssdk.String(container),
	})
	if err != nil && !isNotFound(err) {
		return classify(err, "container", container)
	}
	return nil
}
