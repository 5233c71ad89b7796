package dispatch

import "fmt"

// collect rebuilds submission order by visiting outboxes round-robin, one
// blocking receive per visit, in the same slot pattern the dispatcher used.
// A closed outbox counts as a disconnect and keeps its slot in the rotation;
// collection ends after len(outboxes) disconnects.
//
// Any worker that stopped early leaves the list short, which is reported as
// ErrBrokenInvariant rather than returned.
func collect(outboxes []chan JobResult, expected int) ([]JobResult, error) {
	results := make([]JobResult, 0, expected)
	width := len(outboxes)

	disconnected := 0
	for slot := 0; disconnected < width; slot = (slot + 1) % width {
		res, ok := <-outboxes[slot]
		if !ok {
			disconnected++
			continue
		}
		results = append(results, res)
	}

	if len(results) != expected {
		return nil, fmt.Errorf("%w: collected %d of %d results", ErrBrokenInvariant, len(results), expected)
	}
	return results, nil
}
