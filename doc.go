// Package coursegen provides the orchestration engine for long-running,
// multi-stage content-generation jobs: course creation, batch lesson asset
// generation, and single-lesson media jobs.
//
// Coursegen is designed as a library, not a service. The API layer creates
// a job record, persists its payload, and enqueues a lightweight reference;
// a worker pool in a separate process later hydrates the payload and drives
// the job through its phases, publishing live progress events as it goes.
//
// # Architecture
//
// Persistence follows a composable store pattern: job records, job payloads,
// and the durable queue each define their own store interface (package job),
// and a backend implements one or more of them. Backends: Postgres (records,
// payloads), Redis (queue, payloads, cross-process event relay), and Memory
// (tests, development).
//
// Live progress flows through the stream.Bus: in-process topic fan-out plus
// an optional cross-process relay, so any API instance can serve a job's
// event stream regardless of which worker produced the events.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers (package id).
package coursegen
