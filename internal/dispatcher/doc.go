/*
Package dispatcher runs processing events through the job state machine.

	UPLOADED --claim--> PROCESSING --transcode ok--> READY
	                               \--any failure--> FAILED

Receive is the transport callback: it submits the event to the worker pool
and returns. Process runs on a worker:

 1. Claim the job with a locked read-modify-write. Only an UPLOADED job can
    be claimed; the claim is persisted before any work starts so a
    concurrent duplicate delivery sees PROCESSING.
 2. A redelivery for a READY job only removes the raw upload if it is still
    there. Redeliveries for PROCESSING or FAILED jobs are dropped.
 3. Transcode, then capture a poster frame. A poster failure is logged and
    leaves ThumbnailKey empty.
 4. Record duration, the master playlist and the HLS base directory, set
    READY and notify.
 5. Delete the raw upload. Failure here is logged only.

Any error in 3 or 4 sets FAILED with the reason and sends a failure
notification; the raw upload is kept so the job can be requeued. A transcode
cut short by shutdown leaves the job in PROCESSING; jobctl requeue recovers it.
*/
package dispatcher
