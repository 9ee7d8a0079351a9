package main

import (
	"log"

	"github.com/victornm/raindrop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("raindrop: %v", err)
	}
}
