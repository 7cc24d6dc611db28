package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, email string, jobID string, videoKey string, errorMsg string) error
}
