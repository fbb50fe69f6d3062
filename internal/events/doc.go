/*
Package events connects the dispatcher to the AMQP upload queue.

Consumer reads ProcessingEvents with manual acknowledgement and a bounded
prefetch. Each delivery is decoded and handed to a Handler, which only
submits work and returns. A handler error is retried in process at a fixed
interval (EVENT_MAX_RETRIES, EVENT_RETRY_INTERVAL); once the retries are used
up the delivery is nacked without requeue and logged as dropped. Events that
do not decode are dropped immediately.

Publisher is used by jobctl to republish an event for a stuck job.
*/
package events
