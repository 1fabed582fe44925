// Package cmd implements the vectordb command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ishitachakravarthy/vector-db/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vectordb",
	Short: "A small vector database service",
	Long: `vectordb serves libraries of documents whose text chunks are embedded
into vectors and indexed for top-k cosine-similarity search. Three index
variants are available per library: flat (exhaustive), ivf (inverted
file), and hnsw (hierarchical small world graph).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Current())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
