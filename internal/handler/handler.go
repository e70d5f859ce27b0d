// Package handler turns CloudFormation custom resource events into builds
// and cleanups, and guarantees that CloudFormation hears back exactly once
// per event whatever happens in between.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/aws/aws-lambda-go/cfn"

	"github.com/picklr-io/zipbuilder/internal/locator"
	"github.com/picklr-io/zipbuilder/internal/logging"
	"github.com/picklr-io/zipbuilder/internal/notify"
	"github.com/picklr-io/zipbuilder/internal/storage"
)

var (
	ErrUnsupportedRequestType = errors.New("unsupported request type")
	ErrInvalidProperties      = errors.New("invalid resource properties")
	ErrCleanup                = errors.New("cleanup failed")
)

// logStreamID matches a Lambda log stream name. It is reported as the
// physical resource id when no object id could be computed, so it never
// names an object.
var logStreamID = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/\[[^\]]*\][0-9a-f]+$`)

// Builder runs the build-and-publish pipeline for one resource.
type Builder interface {
	Build(ctx context.Context, bucket, keySource, keyTarget string) error
}

// Dispatcher handles custom resource events.
type Dispatcher struct {
	builder  Builder
	store    storage.Store
	notifier notify.Notifier
	logger   *slog.Logger
}

// New returns a Dispatcher. store is used for cleanup only; builds go
// through builder.
func New(builder Builder, store storage.Store, notifier notify.Notifier) *Dispatcher {
	return &Dispatcher{
		builder:  builder,
		store:    store,
		notifier: notifier,
		logger:   logging.Logger(),
	}
}

// WithLogger replaces the dispatcher's logger.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = logger
	return d
}

// Handle processes one event and reports the outcome to CloudFormation. It
// only returns once the response has been delivered (or the invocation
// deadline passes), and its error describes delivery, not the operation.
func (d *Dispatcher) Handle(ctx context.Context, event cfn.Event) error {
	log := d.logger.With(
		"request_type", event.RequestType,
		"request_id", event.RequestID,
		"logical_resource_id", event.LogicalResourceID,
		"stack_id", event.StackID,
	)
	if raw, err := json.Marshal(event); err == nil {
		log.Info("received event", "event", string(raw))
	}

	physicalID, err := d.dispatch(ctx, log, event)

	status := cfn.StatusSuccess
	reason := ""
	if err != nil {
		status = cfn.StatusFailed
		reason = err.Error()
		log.Error("request failed", "error", err, "physical_resource_id", physicalID)
	} else {
		log.Info("request succeeded", "physical_resource_id", physicalID)
	}

	resp := notify.NewResponse(&event, status, reason, physicalID)
	select {
	case sendErr := <-d.notifier.Send(ctx, resp):
		if sendErr != nil {
			log.Error("failed to deliver response", "error", sendErr)
			return sendErr
		}
		return nil
	case <-ctx.Done():
		log.Error("invocation ended before response was delivered", "error", ctx.Err())
		return ctx.Err()
	}
}

// dispatch runs the operation for event and returns the physical resource
// id to report. Panics are converted to errors so the response still goes out.
func (d *Dispatcher) dispatch(ctx context.Context, log *slog.Logger, event cfn.Event) (physicalID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", event.RequestType, r)
		}
	}()

	props, err := DecodeProperties(event.ResourceProperties)
	if err != nil {
		return "", err
	}
	if props.Bucket != "" && props.KeyTarget != "" {
		physicalID = locator.Format(props.Bucket, props.KeyTarget)
	}

	switch event.RequestType {
	case cfn.RequestCreate:
		if err := props.validate(); err != nil {
			return physicalID, err
		}
		return physicalID, d.builder.Build(ctx, props.Bucket, props.KeySource, props.KeyTarget)

	case cfn.RequestUpdate:
		if err := props.validate(); err != nil {
			return physicalID, err
		}
		if err := d.builder.Build(ctx, props.Bucket, props.KeySource, props.KeyTarget); err != nil {
			return physicalID, err
		}
		if physicalID != event.PhysicalResourceID {
			log.Info("target changed, removing previous build", "previous", event.PhysicalResourceID)
			return physicalID, d.Cleanup(ctx, event.PhysicalResourceID)
		}
		return physicalID, nil

	case cfn.RequestDelete:
		return physicalID, d.Cleanup(ctx, event.PhysicalResourceID)

	default:
		return physicalID, fmt.Errorf("%w: %q", ErrUnsupportedRequestType, event.RequestType)
	}
}

// Cleanup deletes the object a physical resource id points at. A missing
// object is not an error, and neither is a log stream id, which was only
// ever reported for a resource that was never built.
func (d *Dispatcher) Cleanup(ctx context.Context, physicalResourceID string) error {
	if logStreamID.MatchString(physicalResourceID) {
		d.logger.Info("physical resource id names no object, nothing to delete", "physical_resource_id", physicalResourceID)
		return nil
	}

	bucket, key, err := locator.Parse(physicalResourceID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCleanup, err)
	}

	d.logger.Info("deleting object", "bucket", bucket, "key", key)
	if err := d.store.Delete(ctx, bucket, key); err != nil {
		return fmt.Errorf("%w: %w", ErrCleanup, err)
	}
	return nil
}
