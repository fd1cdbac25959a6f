// Package main is the entry point for docker-manager.
package main

import (
	"os"

	"github.com/felden/docker-manager/internal/models"
)

func main() {
	if err := Execute(); err != nil {
		if models.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
