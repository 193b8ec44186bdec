package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mcculloh213/digestwatch/pkg/gallery"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "digest-gallery"}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the icon gallery from the remote icon manifest",
	Run: func(cmd *cobra.Command, args []string) {
		// Load .env if present
		if err := godotenv.Load(); err != nil {
			fmt.Printf("No .env file found or failed to load: %v. Using flags.\n", err)
		}

		manifestURL, _ := cmd.Flags().GetString("manifest-url")
		if manifestURL == "" {
			manifestURL = os.Getenv("ICON_MANIFEST_URL")
		}
		if manifestURL == "" {
			manifestURL = gallery.DefaultManifestURL
		}

		manifest, err := gallery.FetchManifest(cmd.Context(), nil, manifestURL)
		if err != nil {
			fmt.Printf("Failed to fetch icon manifest: %v\n", err)
			os.Exit(1)
		}

		out, _ := cmd.Flags().GetString("out")
		w := os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				fmt.Printf("Failed to create output file: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()
			w = f
		}
		if err := gallery.WriteHTML(w, manifest); err != nil {
			fmt.Printf("Failed to render gallery: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Rendered %d icons\n", len(manifest.Icons))
	},
}

func main() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().String("manifest-url", "", "Icon manifest URL (optional if ICON_MANIFEST_URL is set)")
	renderCmd.Flags().String("out", "", "Output file (defaults to stdout)")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
