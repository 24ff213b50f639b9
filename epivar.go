package main

import (
	"github.com/epivar-cloud/epivar/cmd"
	"github.com/epivar-cloud/epivar/pkg/env"
	"github.com/epivar-cloud/epivar/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("epivar failure", "error", err)
	}
}
