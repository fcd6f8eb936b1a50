// SPDX-License-Identifier: MPL-2.0

// Command postcond enforces Python postconditions inside a target runtime.
package main

import cmd "github.com/postcond/postcond/cmd/postcond"

func main() {
	cmd.Execute()
}
