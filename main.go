package main

import "github.com/tmcnab/nutshell/cmd"

// TODO: optional trace file with one draw per line for external diagnostics
//       (rhat/ess live outside this tool for now)

func main() {
	cmd.Execute()
}
