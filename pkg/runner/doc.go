/*
Package runner is the domain logic behind the runner role: given a
manifest name or a raw stored blob address, fetch the executable bytes
through the storage façade and hand them to the Wasm engine.

It keeps a small in-memory RunnerHistory (running totals plus in-flight
job metadata) for the operator-visibility GET /v1/jobs/history route,
grounded on the original agent's ad hoc job-tracking state
("poor human's history tracking") kept in its AppState.

Runner holds no HTTP concerns; pkg/api's handlers call RunManifest /
RunStored and translate the result (or error) into a response.
*/
package runner
