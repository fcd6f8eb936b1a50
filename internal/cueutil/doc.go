// SPDX-License-Identifier: MPL-2.0

// Package cueutil compiles user CUE against an embedded schema definition,
// validates the unification and decodes the result:
//
//	//go:embed request_schema.cue
//	var requestSchema []byte
//
//	result, err := cueutil.ParseAndDecode[Request](
//	    requestSchema, data, "#Request",
//	    cueutil.WithFilename("task.cue"),
//	)
//
// Errors carry the file name and a JSON-path style location
// ("python.sys_path[1]: conflicting values ...").
package cueutil
