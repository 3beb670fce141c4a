//go:build !race

package songbook

func passwordHashCost() int {
	return 14
}
