package acmeclient

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/go-acme/lego/v4/challenge"
)

// presents an ACME challenge token by writing it to an S3 bucket that the
// domain's webserver fronts under /.well-known/acme-challenge/
type bucketChallengeSolver struct {
	s3     *s3.S3
	bucket string
}

var _ challenge.Provider = (*bucketChallengeSolver)(nil)

func newBucketChallengeSolver(bucket string, region string) (*bucketChallengeSolver, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}

	return &bucketChallengeSolver{
		s3:     s3.New(sess),
		bucket: bucket,
	}, nil
}

func (h *bucketChallengeSolver) Present(domain string, token string, keyAuth string) error {
	// once we've written the object and returned "ok", the ACME servers will
	// request http://DOMAIN/.well-known/acme-challenge/TOKEN
	_, err := h.s3.PutObjectWithContext(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String("acme-challenge/" + token),
		Body:   bytes.NewReader([]byte(keyAuth)),
	})
	return err
}

func (h *bucketChallengeSolver) CleanUp(domain string, token string, keyAuth string) error {
	// bucket lifecycle rules auto-expire these, but let's still be good citizens
	_, err := h.s3.DeleteObjectWithContext(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String("acme-challenge/" + token),
	})
	return err
}
