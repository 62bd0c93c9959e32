// Package main is the entry point for cockpitd, the network-operator
// dashboard backend process.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("cockpitd exited with an error")
		os.Exit(1)
	}
}
