package s3metadatarepository

import (
	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func ErrCode(msg string, err error) error {
	if aerr, ok := errors.Cause(err).(awserr.Error); ok {
		switch aerr.Code() {
		case
			// Access denied.
			"AccessDenied",

			// There is a problem with your AWS account that prevents the operation from completing successfully.
			"AccountProblem",

			// All access to this Amazon S3 resource has been disabled.
			"AllAccessDisabled",

			// Access forbidden.
			"Forbidden",

			// The AWS access key ID you provided does not exist in our records.
			"InvalidAccessKeyId":

			return apierror.New(apierror.ErrForbidden, msg, aerr)
		case
			// ErrCodeBucketAlreadyExists for service response error code
			// "BucketAlreadyExists".
			//
			// The requested bucket name is not available. The bucket namespace is shared
			// by all users of the system. Please select a different name and try again.
			s3.ErrCodeBucketAlreadyExists,

			// ErrCodeBucketAlreadyOwnedByYou for service response error code
			// "BucketAlreadyOwnedByYou".
			s3.ErrCodeBucketAlreadyOwnedByYou,

			// The bucket you tried to delete is not empty.
			"BucketNotEmpty",

			// The request is not valid with the current state of the bucket.
			"InvalidBucketState",

			// A conflicting conditional operation is currently in progress against this resource. Try again.
			"OperationAborted":
			return apierror.New(apierror.ErrConflict, msg, aerr)
		case
			// ErrCodeNoSuchBucket for service response error code
			// "NoSuchBucket".
			//
			// The specified bucket does not exist.
			s3.ErrCodeNoSuchBucket,

			// ErrCodeNoSuchKey for service response error code
			// "NoSuchKey".
			//
			// The specified key does not exist.
			s3.ErrCodeNoSuchKey,

			// The specified object does not exist.
			"NotFound",

			// The specified bucket does not have a bucket policy.
			"NoSuchBucketPolicy",

			// Indicates that the version ID specified in the request does not match an existing version.
			"NoSuchVersion":
			return apierror.New(apierror.ErrNotFound, msg, aerr)
		case
			// Reduce your request rate.
			"SlowDown":
			return apierror.New(apierror.ErrLimitExceeded, msg, aerr)
		case
			// We encountered an internal error. Please try again.
			"InternalError",

			// Reduce your request rate.
			"ServiceUnavailable":
			return apierror.New(apierror.ErrServiceUnavailable, msg, aerr)
		default:
			m := msg + ": " + aerr.Message()
			return apierror.New(apierror.ErrBadRequest, m, aerr)
		}
	}

	log.Warnf("uncaught error: %s, returning Internal Server Error: %s", err, msg)
	return apierror.New(apierror.ErrInternalError, msg, err)
}
