// Package dispatch drains the durable command queue and delivers each
// command to a device endpoint, recording Sent or Error in the sink. The
// loop is single-worker so commands leave in enqueue order.
package dispatch
