package annex

// Allocate distributes a target total size across poolCount resource
// pools by largest remainder: every pool gets floor(total/poolCount)
// and the first total%poolCount pools, in input order, get one more.
// The result always sums to total and is non-increasing, so a total
// smaller than the pool count leaves trailing pools at zero.
//
// Allocate panics if poolCount < 1 or total < 0; both are argument
// errors the caller validates before any remote call.
func Allocate(total, poolCount int) []int {
	if poolCount < 1 {
		panic("annex: Allocate requires at least one pool")
	}
	if total < 0 {
		panic("annex: Allocate requires a non-negative total")
	}

	base := total / poolCount
	remainder := total % poolCount

	sizes := make([]int, poolCount)
	for i := range sizes {
		sizes[i] = base
		if i < remainder {
			sizes[i]++
		}
	}
	return sizes
}
