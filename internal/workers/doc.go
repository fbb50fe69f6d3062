/*
Package workers sizes and runs the transcode worker pool.

# Sizing

Count and ForCPU derive a worker count from GOMAXPROCS, which Go 1.19+ sets
from the container CPU limit, rather than runtime.NumCPU, which reports the
host. Transcoding is CPU-bound, so the service uses one worker per CPU capped
at a small limit:

	n := workers.ForCPU(2)

Operators can pin the count with TRANSCODE_WORKERS:

	env:
	- name: TRANSCODE_WORKERS
	  value: "4"

# Pool

Pool runs tasks on a fixed set of goroutines fed by a bounded queue. Submit
never blocks: when the queue is full it returns jobs.ErrQueueFull so that the
event consumer can leave redelivery to its retry policy instead of stalling
intake behind a long transcode.

	pool := workers.NewPool(2, 500)
	err := pool.Submit("job 42", func(ctx context.Context) { ... })

	// on shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool.Shutdown(ctx)

Shutdown stops intake, lets queued and running tasks finish, and cancels the
task context if the deadline passes first.
*/
package workers
