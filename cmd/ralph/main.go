// Command ralph is the CLI front end for the parallel execution
// coordinator: start/status/pause/resume/tui subcommands wired over
// internal/coordinator.
package main

func main() {
	Execute()
}
