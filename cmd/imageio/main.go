// Command imageio inspects and converts TIFF and Targa images.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("imageio: ")

	root := &cobra.Command{
		Use:           "imageio",
		Short:         "Inspect and convert TIFF and Targa images",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(infoCmd(), convertCmd(), formatsCmd())

	if err := root.Execute(); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}
