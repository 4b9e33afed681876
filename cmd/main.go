package main

import (
	"os"

	"github.com/soundprediction/evidential/cmd/evidential"
)

func main() {
	if err := evidential.Execute(); err != nil {
		os.Exit(1)
	}
}
