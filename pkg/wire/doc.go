// Package wire implements the manager-side half of the line-oriented,
// length-prefixed protocol a worker speaks over a plain or TLS-wrapped
// net.Conn (spec §4.1, §6, §9): reading and classifying lines as
// solicited/async/failure, reading exact-length binary payloads, and
// computing a transfer stoptime from an observed bandwidth estimate.
//
// Grounded on
// _examples/original_source/dataswarm/src/manager/ds_manager.c
// (get_transfer_wait_time, get_queue_transfer_rate) for the bandwidth
// estimator and timeout formula, and spec §9's "centralize in a
// receive loop that classifies each line" guidance for the line
// classifier. No pack repo ships a line-oriented RPC codec closer to
// this shape than stdlib bufio/net, so this is hand-rolled per
// DESIGN.md.
package wire
