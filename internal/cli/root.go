// Package cli implements the editions command line.
package cli

import (
	"context"
	"fmt"
)

// Run dispatches args to a subcommand.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runPipeline(ctx, args[1:])
	case "upload":
		return runUpload(ctx, args[1:])
	case "process":
		return runProcess(ctx, args[1:])
	case "collections":
		return runCollections(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "publish":
		return runPublish(ctx, args[1:])
	case "mirror":
		return runMirror(ctx, args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("editions: Transkribus automation for digital editions")
	fmt.Println()
	fmt.Println("Pipeline Commands:")
	fmt.Println("  run          upload (optional), then layout analysis, OCR and export of new documents")
	fmt.Println("  upload       upload image folders as documents and wait until they are listed")
	fmt.Println("  process      process the new documents of one collection")
	fmt.Println("  collections  list the collections visible to the account")
	fmt.Println("  history      write the run history as an XLSX workbook")
	fmt.Println()
	fmt.Println("Publishing Commands:")
	fmt.Println("  publish      fetch, validate and store edition files in eXist-db")
	fmt.Println("  mirror       copy files into the configured GitLab or GitHub repository")
	fmt.Println()
	fmt.Println("Every command accepts --config, --log-level and --log-format.")
	fmt.Println("Credentials come from the environment or a .env file.")
}
