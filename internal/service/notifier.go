package service

import (
	"context"

	"github.com/noah-isme/inscripciones-api/internal/models"
)

// Notifier delivers enrollment notifications to students. The smtp settings
// section reserves the delivery configuration; no delivery backend ships
// with the service, deployments plug one in through SetNotifier. Failures
// are logged and never fail the enrollment operation.
type Notifier interface {
	EnrollmentSaved(ctx context.Context, rec models.Record) error
	EnrollmentDeleted(ctx context.Context, id string) error
}
