// Package batch splits IMEI lists into core-system sized batches and
// spreads those batches over a bounded number of work groups.
package batch

// Limits imposed by the core system batch endpoint and the worker fan-out.
const (
	// DefaultSize is the maximum number of IMEIs accepted per imei-batch call.
	DefaultSize = 1000

	// DefaultMaxGroups is the maximum number of concurrent work groups.
	DefaultMaxGroups = 10
)

// Group is the ordered list of batches handled by one worker.
type Group [][]string

// Split partitions ids into consecutive batches of at most size items.
// Order is preserved. A non-positive size falls back to DefaultSize.
func Split(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultSize
	}

	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end:end])
	}
	return batches
}

// Distribute spreads batches over min(maxGroups, len(batches)) groups of
// consecutive batches. Group sizes differ by at most one, the larger groups
// first, so no group holds more than ceil(len(batches)/maxGroups) batches.
func Distribute(batches [][]string, maxGroups int) []Group {
	if len(batches) == 0 {
		return nil
	}
	if maxGroups <= 0 {
		maxGroups = DefaultMaxGroups
	}

	count := min(maxGroups, len(batches))
	base, extra := len(batches)/count, len(batches)%count

	groups := make([]Group, 0, count)
	start := 0
	for i := 0; i < count; i++ {
		size := base
		if i < extra {
			size++
		}
		end := start + size
		groups = append(groups, Group(batches[start:end:end]))
		start = end
	}
	return groups
}

// Plan drops empty identifiers, then splits and distributes the rest.
func Plan(ids []string, size, maxGroups int) []Group {
	return Distribute(Split(Compact(ids), size), maxGroups)
}

// Compact returns ids without empty entries. The input is not modified.
func Compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Flatten concatenates batches back into a single identifier list.
func Flatten(batches [][]string) []string {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	out := make([]string, 0, n)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}
