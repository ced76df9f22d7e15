// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command mend runs episodic crash analysis over a source repository.
//
// Given a crash report (ASan, gdb, or JVM stack trace) and a repository
// checkout, mend drives an analysis loop: a policy inspects the crash and
// the documents gathered so far, requests function definitions by symbol,
// and eventually proposes a patch or declares the analysis done.
//
// Usage:
//
//	mend analyze --crash crash.txt --repo /path/to/checkout
//	mend analyze --crash crash.txt --repo . --languages cpp --episode-length 6
//
// With a local llama.cpp backend:
//
//	MEND_LLM_URL_BASE=http://localhost:8080 mend analyze \
//	  --crash crash.txt --repo . --backend local
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
