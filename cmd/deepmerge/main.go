// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
