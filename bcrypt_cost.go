//go:build !race

package members

func passwordHashCost() int {
	return 12
}
