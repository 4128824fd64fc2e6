// Package workflow schedules jobs onto the encoder.
//
// The Manager routes each submitted job to one of three queues: the serial
// queue (one worker), the parallel queue (one FIFO and worker pool per codec
// family), or the folder-watch queue (one goroutine per watched directory).
// Serial and parallel work never overlap; within the parallel queue a
// fairness gate lets one codec family run at a time and rotates families
// least-recently-served first. The hardware family may bypass the gate when
// configured as concurrent.
//
// In parallel mode with chunking enabled a long standard job is split into
// video chunks plus one audio chunk. The chunks run as ordinary parallel
// jobs and the last one to settle concatenates and muxes the outputs
// exactly once.
//
// Worker loops are supervised: a panic inside one job fails that job only,
// while a panic escaping the loop restarts it until the configured restart
// limit, after which the pool is reported as degraded in Status.
package workflow
