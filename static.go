package main

import _ "embed"

// indexHTML is the embedded dashboard page.
//
//go:embed web/index.html
var indexHTML string
