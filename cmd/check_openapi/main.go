// Command check_openapi verifies that the service OpenAPI documents share
// one error contract matching internal/apperr.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>...\n", os.Args[0])
		os.Exit(2)
	}
	if err := run(os.Args[1:]); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func run(paths []string) error {
	var (
		firstScope string
		firstShape schemaShape
	)
	for i, path := range paths {
		scope := filepath.Base(path)
		doc, err := loadDoc(path)
		if err != nil {
			return err
		}
		errSchema, err := getSchema(doc, "ErrorResponse")
		if err != nil {
			return fmt.Errorf("%s: %w", scope, err)
		}
		if err := validateErrorResponse(scope, errSchema); err != nil {
			return err
		}
		if err := validateErrorStatuses(scope, doc); err != nil {
			return err
		}
		shape := shapeFromSchema(errSchema)
		if i == 0 {
			firstScope, firstShape = scope, shape
			continue
		}
		if err := ensureSameShape("ErrorResponse ("+firstScope+" vs "+scope+")", firstShape, shape); err != nil {
			return err
		}
	}
	return nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
