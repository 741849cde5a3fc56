// Command doc-extractor extracts text from PDFs and images, using the native
// text layer when present and OCR otherwise.
package main

import (
	"os"

	"github.com/spherical/doc-extractor/cmd/doc-extractor/commands"
)

func main() {
	os.Exit(commands.Execute())
}
