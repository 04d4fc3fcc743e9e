package system

import "context"

// Service is a background component owned by the Manager, such as the job
// scheduler or the order feed hub.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
