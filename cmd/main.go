package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "geostory-pipeline",
	Short: "A CLI for managing the geostory enrichment services",
	Long:  `Geostory Pipeline ingests news articles, geolocates the places they mention, and scores them for satellite imagery relevance.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI '%s'", err)
		os.Exit(1)
	}
}
