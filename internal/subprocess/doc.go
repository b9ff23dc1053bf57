// Package subprocess runs the external tools the provisioner delegates to:
// the Python interpreter, pip and setup.py. Commands run strictly one after
// another with their output streamed to the terminal.
package subprocess
