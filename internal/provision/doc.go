// Package provision rebuilds the development environment of the Larynx
// text to speech service: it fetches or checks the vendored sources,
// recreates the virtual environment and installs every manifest in order.
//
// A run is a fixed sequence of steps. Required steps stop the run on the
// first failure; the development requirements step is optional and only
// produces a warning. Every run starts from a deleted environment, so two
// runs over the same inputs execute the same commands.
package provision
