//go:build unix

package scope

import "golang.org/x/sys/unix"

// checkEnterable reports whether the process may search dir, which is what
// both chdir and path lookups below dir require.
func checkEnterable(dir string) error {
	return unix.Access(dir, unix.X_OK)
}
