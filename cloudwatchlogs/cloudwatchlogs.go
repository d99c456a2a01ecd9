package cloudwatchlogs

import (
	"context"

	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs/cloudwatchlogsiface"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CloudWatchLogs is a wrapper around the aws cloudwatchlogs service
type CloudWatchLogs struct {
	Service cloudwatchlogsiface.CloudWatchLogsAPI
}

// Event is a cloudwatch log event
type Event struct {
	Message   string
	Timestamp int64
}

// LogGroup is summary information about a cloudwatch log group
type LogGroup struct {
	Name      string
	Arn       string
	Retention int64
	CreatedAt int64
}

// NewSession creates a new cloudwatch logs session
func NewSession(region, akid, secret string) CloudWatchLogs {
	c := CloudWatchLogs{}

	log.Infof("creating new aws session for cloudwatch logs in region %s", region)

	sess := session.Must(session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(akid, secret, ""),
		Region:      aws.String(region),
	}))

	c.Service = cloudwatchlogs.New(sess)
	return c
}

// CreateLogGroup creates a cloudwatch log group, ignoring the case where it already exists
func (c *CloudWatchLogs) CreateLogGroup(ctx context.Context, group string, tags map[string]*string) error {
	if group == "" {
		return apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty log group"))
	}

	log.Infof("creating log group %s", group)

	if _, err := c.Service.CreateLogGroupWithContext(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(group),
		Tags:         tags,
	}); err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == cloudwatchlogs.ErrCodeResourceAlreadyExistsException {
			log.Debugf("log group %s already exists", group)
			return nil
		}
		return ErrCode("failed to create log group "+group, err)
	}

	return nil
}

// CreateLogStream creates a cloudwatch log stream in a log group, ignoring the case where it already exists
func (c *CloudWatchLogs) CreateLogStream(ctx context.Context, group, stream string) error {
	if group == "" || stream == "" {
		return apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty log group or stream"))
	}

	log.Infof("creating log stream %s in group %s", stream, group)

	if _, err := c.Service.CreateLogStreamWithContext(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
	}); err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == cloudwatchlogs.ErrCodeResourceAlreadyExistsException {
			log.Debugf("log stream %s/%s already exists", group, stream)
			return nil
		}
		return ErrCode("failed to create log stream "+stream, err)
	}

	return nil
}

// UpdateRetention sets the retention (in days) for a log group
func (c *CloudWatchLogs) UpdateRetention(ctx context.Context, group string, retention int64) error {
	if group == "" {
		return apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty log group"))
	}

	log.Infof("updating retention for log group %s to %d days", group, retention)

	if _, err := c.Service.PutRetentionPolicyWithContext(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(group),
		RetentionInDays: aws.Int64(retention),
	}); err != nil {
		return ErrCode("failed to update retention for log group "+group, err)
	}

	return nil
}

// LogEvent writes a batch of log events to a log stream
func (c *CloudWatchLogs) LogEvent(ctx context.Context, group, stream string, events []*Event) error {
	if group == "" || stream == "" || len(events) == 0 {
		return apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty log group, stream or events"))
	}

	logEvents := make([]*cloudwatchlogs.InputLogEvent, len(events))
	for i, e := range events {
		logEvents[i] = &cloudwatchlogs.InputLogEvent{
			Message:   aws.String(e.Message),
			Timestamp: aws.Int64(e.Timestamp),
		}
	}

	// the put events api requires the current upload sequence token for the stream
	streams, err := c.Service.DescribeLogStreamsWithContext(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName:        aws.String(group),
		LogStreamNamePrefix: aws.String(stream),
	})
	if err != nil {
		return ErrCode("failed to describe log stream "+stream, err)
	}

	var sequenceToken *string
	for _, s := range streams.LogStreams {
		if aws.StringValue(s.LogStreamName) == stream {
			sequenceToken = s.UploadSequenceToken
			break
		}
	}

	if _, err := c.Service.PutLogEventsWithContext(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
		LogEvents:     logEvents,
		SequenceToken: sequenceToken,
	}); err != nil {
		return ErrCode("failed to put log events to "+group+"/"+stream, err)
	}

	return nil
}

// GetLogEvents reads the log events from a log stream, oldest first
func (c *CloudWatchLogs) GetLogEvents(ctx context.Context, group, stream string) ([]*Event, error) {
	if group == "" || stream == "" {
		return nil, apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty log group or stream"))
	}

	log.Debugf("getting log events from %s/%s", group, stream)

	out, err := c.Service.GetLogEventsWithContext(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
		StartFromHead: aws.Bool(true),
	})
	if err != nil {
		return nil, ErrCode("failed to get log events from "+group+"/"+stream, err)
	}

	events := make([]*Event, len(out.Events))
	for i, e := range out.Events {
		events[i] = &Event{
			Message:   aws.StringValue(e.Message),
			Timestamp: aws.Int64Value(e.Timestamp),
		}
	}

	return events, nil
}

// TagLogGroup adds tags to a log group
func (c *CloudWatchLogs) TagLogGroup(ctx context.Context, group string, tags map[string]*string) error {
	if group == "" {
		return apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty log group"))
	}

	log.Infof("tagging log group %s", group)

	if _, err := c.Service.TagLogGroupWithContext(ctx, &cloudwatchlogs.TagLogGroupInput{
		LogGroupName: aws.String(group),
		Tags:         tags,
	}); err != nil {
		return ErrCode("failed to tag log group "+group, err)
	}

	return nil
}

// GetLogGroupTags returns the tags for a log group
func (c *CloudWatchLogs) GetLogGroupTags(ctx context.Context, group string) (map[string]*string, error) {
	if group == "" {
		return nil, apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty log group"))
	}

	out, err := c.Service.ListTagsLogGroupWithContext(ctx, &cloudwatchlogs.ListTagsLogGroupInput{
		LogGroupName: aws.String(group),
	})
	if err != nil {
		return nil, ErrCode("failed to list tags for log group "+group, err)
	}

	return out.Tags, nil
}

// DescribeLogGroup returns summary information about a log group
func (c *CloudWatchLogs) DescribeLogGroup(ctx context.Context, group string) (*LogGroup, error) {
	if group == "" {
		return nil, apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty log group"))
	}

	out, err := c.Service.DescribeLogGroupsWithContext(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
		LogGroupNamePrefix: aws.String(group),
	})
	if err != nil {
		return nil, ErrCode("failed to describe log group "+group, err)
	}

	for _, lg := range out.LogGroups {
		if aws.StringValue(lg.LogGroupName) == group {
			return &LogGroup{
				Name:      aws.StringValue(lg.LogGroupName),
				Arn:       aws.StringValue(lg.Arn),
				Retention: aws.Int64Value(lg.RetentionInDays),
				CreatedAt: aws.Int64Value(lg.CreationTime),
			}, nil
		}
	}

	return nil, apierror.New(apierror.ErrNotFound, "log group not found: "+group, nil)
}

// DeleteLogGroup deletes a log group
func (c *CloudWatchLogs) DeleteLogGroup(ctx context.Context, group string) error {
	if group == "" {
		return apierror.New(apierror.ErrBadRequest, "invalid input", errors.New("empty log group"))
	}

	log.Infof("deleting log group %s", group)

	if _, err := c.Service.DeleteLogGroupWithContext(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: aws.String(group),
	}); err != nil {
		return ErrCode("failed to delete log group "+group, err)
	}

	return nil
}
