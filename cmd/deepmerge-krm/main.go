// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/sam-fredrickson/deepmerge/internal/logging"
)

func main() {
	// stdout carries the ResourceList, so logs always go to stderr
	log := logging.Setup(logging.Config{
		Level:  os.Getenv("DEEPMERGE_LOG_LEVEL"),
		Format: os.Getenv("DEEPMERGE_LOG_FORMAT"),
	}, os.Stderr)

	if err := Run(os.Stdin, os.Stdout, log); err != nil {
		fmt.Fprintln(os.Stderr, "deepmerge-krm:", err)
		os.Exit(1)
	}
}
