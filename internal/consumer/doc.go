// Package consumer drives one stream partition: it pulls event batches in
// sequence order, routes each through a Dispatcher, and periodically
// checkpoints the high watermark through the lease store so a restart
// resumes from the last saved position instead of the beginning. Events
// between the checkpoint and a crash are redelivered; downstream handling is
// idempotent to absorb that.
package consumer
