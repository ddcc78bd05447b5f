package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env in the working directory.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
