package routers

import "context"

// Failure-window defaults for the Redis stats store: failures are counted in
// minute buckets over a sliding five-minute window. Single-deployment groups
// need a much larger sample before they may cool down, since cooling the only
// deployment just turns errors into "no available deployment".
const (
	defaultFailureWindowMinutes          = 5
	defaultFailureBucketSeconds          = 60
	defaultSingleDeploymentFailureMinReq = 50
)

type failureRecordOptions struct {
	isSingleDeployment bool
}

// failureRecordWithOptions is implemented by stores that apply the cooldown
// policy themselves and need routing context to do it.
type failureRecordWithOptions interface {
	RecordFailureWithOptions(ctx context.Context, deploymentID string, err error, opts failureRecordOptions) error
}
