package vmware

import "iter"

// preOrder walks a forest depth-first, yielding each node before its children.
// Siblings keep the order they were given in. Children are only requested
// once the consumer asked for the next node, so breaking out of the loop stops
// all further lookups.
func preOrder[T any](roots []T, children func(T) ([]T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		stack := pushReversed(make([]T, 0, len(roots)), roots)

		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if !yield(node, nil) {
				return
			}

			kids, err := children(node)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			stack = pushReversed(stack, kids)
		}
	}
}

// postOrder walks a forest depth-first, yielding all children of a node
// before the node itself.
func postOrder[T any](roots []T, children func(T) []T) iter.Seq[T] {
	type frame struct {
		node     T
		expanded bool
	}

	return func(yield func(T) bool) {
		stack := make([]frame, 0, len(roots))
		for i := len(roots) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: roots[i]})
		}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			kids := children(top.node)
			if top.expanded || len(kids) == 0 {
				if !yield(top.node) {
					return
				}
				continue
			}

			stack = append(stack, frame{node: top.node, expanded: true})
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: kids[i]})
			}
		}
	}
}

func pushReversed[T any](stack []T, items []T) []T {
	for i := len(items) - 1; i >= 0; i-- {
		stack = append(stack, items[i])
	}
	return stack
}
