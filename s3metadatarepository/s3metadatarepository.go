package s3metadatarepository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// S3RepositoryOption is a function to set repository options
type S3RepositoryOption func(*S3Repository)

// S3Repository is an implementation of a metadata respository in S3
type S3Repository struct {
	S3     s3iface.S3API
	Bucket string
	Prefix string
	config *aws.Config
}

// NewDefaultRepository creates a new repository from the default config data
func NewDefaultRepository(config map[string]interface{}) (*S3Repository, error) {
	var akid, secret, token, region, endpoint, bucket, prefix string
	if v, ok := config["akid"].(string); ok {
		akid = v
	}

	if v, ok := config["secret"].(string); ok {
		secret = v
	}

	if v, ok := config["token"].(string); ok {
		token = v
	}

	if v, ok := config["region"].(string); ok {
		region = v
	}

	if v, ok := config["endpoint"].(string); ok {
		endpoint = v
	}

	if v, ok := config["bucket"].(string); ok {
		bucket = v
	}

	if v, ok := config["prefix"].(string); ok {
		prefix = v
	}

	opts := []S3RepositoryOption{
		WithStaticCredentials(akid, secret, token),
	}

	if region != "" {
		opts = append(opts, WithRegion(region))
	}

	if endpoint != "" {
		opts = append(opts, WithEndpoint(endpoint))
	}

	if bucket != "" {
		opts = append(opts, WithBucket(bucket))
	}

	if prefix != "" {
		opts = append(opts, WithPrefix(prefix))
	}

	return New(opts...)
}

// New creates an S3Repository from a list of S3RepositoryOption functions
func New(opts ...S3RepositoryOption) (*S3Repository, error) {
	log.Info("creating new s3 metadata repository provider")

	s := S3Repository{}
	s.config = aws.NewConfig()

	for _, opt := range opts {
		opt(&s)
	}

	sess := session.Must(session.NewSession(s.config))

	s.S3 = s3.New(sess)
	return &s, nil
}

// WithStaticCredentials authenticates with AWS static credentials (key, secret, token)
func WithStaticCredentials(akid, secret, token string) S3RepositoryOption {
	return func(s *S3Repository) {
		log.Debugf("setting static credentials with akid %s", akid)
		s.config.WithCredentials(credentials.NewStaticCredentials(akid, secret, token))
	}
}

// WithRegion sets the region for the S3Repository
func WithRegion(region string) S3RepositoryOption {
	return func(s *S3Repository) {
		log.Debugf("setting region %s", region)
		s.config.WithRegion(region)
	}
}

// WithEndpoint sets the endpoint for the S3Repository
func WithEndpoint(endpoint string) S3RepositoryOption {
	return func(s *S3Repository) {
		log.Debugf("setting endpoint %s", endpoint)
		s.config.WithEndpoint(endpoint)
	}
}

// WithBucket sets the bucket for the S3Repository
func WithBucket(bucket string) S3RepositoryOption {
	return func(s *S3Repository) {
		log.Debugf("setting bucket %s", bucket)
		s.Bucket = bucket
	}
}

// WithPrefix sets the bucket prefix for the S3Repository
func WithPrefix(prefix string) S3RepositoryOption {
	return func(s *S3Repository) {
		log.Debugf("setting bucket prefix %s", prefix)
		s.Prefix = prefix
	}
}

// key builds the object key for an entity metadata document. The urn is
// query escaped since it contains characters S3 treats specially.
func (s *S3Repository) key(account, urn string) string {
	key := account + "/" + url.QueryEscape(urn) + ".json"
	if s.Prefix != "" {
		key = s.Prefix + "/" + key
	}
	return key
}

// exists checks if a metadata document exists in the repository
func (s *S3Repository) exists(ctx context.Context, account, urn string) (bool, error) {
	if _, err := s.S3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(account, urn)),
	}); err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, "NotFound":
				return false, nil
			case "Forbidden":
				msg := fmt.Sprintf("forbidden to access metadata document for %s: %s", urn, aerr.Error())
				return true, apierror.New(apierror.ErrForbidden, msg, err)
			default:
				return false, apierror.New(apierror.ErrBadRequest, aerr.Message(), err)
			}
		}
		return false, apierror.New(apierror.ErrInternalError, "unexpected error checking for metadata document", err)
	}

	return true, nil
}

// Create writes a new entity metadata document to the repository
func (s *S3Repository) Create(ctx context.Context, account, urn string, m *metadata.Metadata) (*metadata.Metadata, error) {
	if account == "" || urn == "" || m == nil {
		return nil, apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty account, urn or metadata"))
	}

	log.Debugf("creating metadata document for %s in account %s", urn, account)

	if exists, err := s.exists(ctx, account, urn); err != nil {
		return nil, err
	} else if exists {
		return nil, apierror.New(apierror.ErrConflict, "metadata document already exists for "+urn, nil)
	}

	out, err := s.put(ctx, account, urn, m)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Get reads an entity metadata document from the repository
func (s *S3Repository) Get(ctx context.Context, account, urn string) (*metadata.Metadata, error) {
	if account == "" || urn == "" {
		return nil, apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty account or urn"))
	}

	key := s.key(account, urn)

	log.Debugf("getting metadata document %s", key)

	out, err := s.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ErrCode("failed to get metadata document for "+urn, err)
	}
	defer out.Body.Close()

	m := &metadata.Metadata{}
	if err := json.NewDecoder(out.Body).Decode(m); err != nil {
		msg := fmt.Sprintf("cannot decode metadata document for %s: %s", urn, err)
		return nil, apierror.New(apierror.ErrInternalError, msg, err)
	}

	return m, nil
}

// Update overwrites an existing entity metadata document in the repository
func (s *S3Repository) Update(ctx context.Context, account, urn string, m *metadata.Metadata) (*metadata.Metadata, error) {
	if account == "" || urn == "" || m == nil {
		return nil, apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty account, urn or metadata"))
	}

	log.Debugf("updating metadata document for %s in account %s", urn, account)

	if exists, err := s.exists(ctx, account, urn); err != nil {
		return nil, err
	} else if !exists {
		return nil, apierror.New(apierror.ErrNotFound, "metadata document not found for "+urn, nil)
	}

	out, err := s.put(ctx, account, urn, m)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Delete removes an entity metadata document from the repository
func (s *S3Repository) Delete(ctx context.Context, account, urn string) error {
	if account == "" || urn == "" {
		return apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty account or urn"))
	}

	if exists, err := s.exists(ctx, account, urn); err != nil {
		return err
	} else if !exists {
		return apierror.New(apierror.ErrNotFound, "metadata document not found for "+urn, nil)
	}

	key := s.key(account, urn)

	log.Debugf("deleting metadata document %s", key)

	if _, err := s.S3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return ErrCode("failed to delete metadata document for "+urn, err)
	}

	return nil
}

// List returns the urns for all entity metadata documents in an account
func (s *S3Repository) List(ctx context.Context, account string) ([]string, error) {
	if account == "" {
		return nil, apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty account"))
	}

	keyPrefix := account + "/"
	if s.Prefix != "" {
		keyPrefix = s.Prefix + "/" + keyPrefix
	}

	log.Debugf("listing metadata documents under %s", keyPrefix)

	urns := []string{}
	input := s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(keyPrefix),
	}

	for {
		output, err := s.S3.ListObjectsV2WithContext(ctx, &input)
		if err != nil {
			return nil, ErrCode("failed to list metadata documents for account "+account, err)
		}

		for _, object := range output.Contents {
			key := strings.TrimPrefix(aws.StringValue(object.Key), keyPrefix)
			key = strings.TrimSuffix(key, ".json")

			urn, err := url.QueryUnescape(key)
			if err != nil {
				log.Warnf("skipping metadata document with unparseable key %s: %s", aws.StringValue(object.Key), err)
				continue
			}

			urns = append(urns, urn)
		}

		if !aws.BoolValue(output.IsTruncated) {
			break
		}

		input.ContinuationToken = output.NextContinuationToken
	}

	return urns, nil
}

// put marshals and writes a metadata document
func (s *S3Repository) put(ctx context.Context, account, urn string, m *metadata.Metadata) (*metadata.Metadata, error) {
	j, err := json.Marshal(m)
	if err != nil {
		msg := fmt.Sprintf("cannot encode metadata document for %s: %s", urn, err)
		return nil, apierror.New(apierror.ErrInternalError, msg, err)
	}

	if _, err := s.S3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.Bucket),
		Key:                  aws.String(s.key(account, urn)),
		Body:                 bytes.NewReader(j),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: aws.String("AES256"),
	}); err != nil {
		return nil, ErrCode("failed to write metadata document for "+urn, err)
	}

	return m, nil
}
