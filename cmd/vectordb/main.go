// vectordb is the vector database service binary.
package main

import (
	"fmt"
	"os"

	"github.com/ishitachakravarthy/vector-db/cmd/vectordb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
