// Package locator builds and parses the physical resource id reported to
// CloudFormation for a built archive. The id is an S3 object ARN:
//
//	arn:aws:s3:::<bucket>/<key>
package locator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

// ErrInvalid is returned when a physical resource id does not encode a bucket and key.
var ErrInvalid = errors.New("invalid physical resource id")

// Format returns the physical resource id for the object at bucket/key.
func Format(bucket, key string) string {
	return arn.ARN{
		Partition: "aws",
		Service:   "s3",
		Resource:  bucket + "/" + key,
	}.String()
}

// Parse extracts the bucket and key from a physical resource id. Everything
// after the last ':' is split on its first '/'.
func Parse(id string) (bucket, key string, err error) {
	tail := id[strings.LastIndex(id, ":")+1:]

	bucket, key, ok := strings.Cut(tail, "/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q has no bucket/key separator", ErrInvalid, id)
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q has an empty bucket or key", ErrInvalid, id)
	}
	return bucket, key, nil
}
