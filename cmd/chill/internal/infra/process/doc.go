// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process abstracts external process execution.

Every call to npm, npx, node or docker goes through Manager so that the
setup pipeline can be tested without real processes.

	pm := process.NewDefaultManager()
	out, err := pm.Run(ctx, projectDir, "npx", "supabase", "status")
	if err != nil {
	    var cmdErr *process.CommandError
	    if errors.As(err, &cmdErr) {
	        fmt.Println(cmdErr.Stderr)
	    }
	}

For testing, use MockManager:

	mock := &process.MockManager{
	    RunFunc: func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	        return []byte("API URL: http://127.0.0.1:54321"), nil
	    },
	}

# Thread Safety

Both implementations are safe for concurrent use.

# Limitations

Output is buffered in memory. Commands that stream large amounts of output
should use RunAttached instead.
*/
package process
