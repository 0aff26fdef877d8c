// Package worker runs the two queue consumers.
//
// The inference consumer classifies completed embedding jobs and hands the
// level to the record store and vector index on a bounded write pool without
// waiting for it. The feedback consumer applies reviewer corrections to the
// centroids through the centroid manager and triggers a reconciliation sweep.
//
// Both loops run until their context is cancelled. Malformed jobs are
// dropped; transient failures are logged, the job is pushed back, and the
// loop sleeps with a capped exponential backoff.
package worker
