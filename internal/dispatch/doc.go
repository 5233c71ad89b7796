// Package dispatch runs a batch of independent jobs on a fixed pool of
// workers and returns their results in submission order.
//
// A batch is processed by one dispatcher, W workers and one collector, all
// scoped to that batch and joined before Run returns:
//
//	jobs ─▶ dispatcher ─(i mod W)─▶ inbox[k] ─▶ worker k ─▶ outbox[k] ─▶ collector ─▶ results
//
// Ordering without sequence numbers:
//   - The dispatcher sends job i to worker i mod W. Job i is therefore the
//     ⌊i/W⌋-th message worker i mod W receives.
//   - Each worker handles its inbox strictly in arrival order and writes one
//     result per job to its own outbox; channel FIFO keeps that order.
//   - The collector visits outboxes 0, 1, …, W-1, 0, 1, … with one blocking
//     receive per visit. Visit i lands on outbox i mod W and returns that
//     worker's ⌊i/W⌋-th result, which is the result of job i.
//   - A closed outbox counts as one disconnect and stays in the rotation.
//     Collection stops after W disconnects.
//
// Channels are buffered to exactly the number of jobs each slot receives,
// so neither dispatcher nor worker sends ever block. The only blocking points
// are the worker's inbox receive and the collector's outbox receive.
//
// Error handling:
//   - Build failure → JobResult with OutcomeBuildFailed, reported in place
//   - Run failure → JobResult with OutcomeRunFailed, reported in place
//   - Panic inside the engine → recovered, reported in place as the failure
//     kind of the phase that panicked
//   - Broken topology (a send that would block, a goroutine leaving its loop
//     early, fewer results than jobs) → ErrBrokenInvariant, the whole batch fails
//
// Limitations:
//   - Static round-robin partitioning; uneven job cost is not compensated
//   - No per-job or per-batch timeout. A job that never returns blocks its
//     worker, the collector at that slot, and so the whole batch
package dispatch
