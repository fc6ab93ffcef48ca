// Package resource bounds the resources a Service spends on materialization.
//
// A Controller tracks three budgets:
//
//   - memory for decoded matrix blocks and the block cache (hard limit, non-blocking)
//   - build slots, i.e. how many query→encode pipelines run at once (blocking)
//   - artifact write throughput in bytes per second (blocking, token bucket)
//
// A nil *Controller is valid and imposes no limits.
package resource
