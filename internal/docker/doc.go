// Package docker runs the doctest engine inside a container through the
// Docker Engine API.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Labelling engine containers with the run ID and package name so
//     leftovers from an interrupted run can be found and removed
//   - One short-lived container per package: the run anchor is
//     bind-mounted, the package directory becomes the container's working
//     directory, and the file list is appended to the engine command
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
