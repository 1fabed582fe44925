// Package version exposes the build identity stamped into the binary.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via
// -ldflags "-X github.com/ishitachakravarthy/vector-db/pkg/version.Number=... \
//            -X github.com/ishitachakravarthy/vector-db/pkg/version.Commit=... \
//            -X github.com/ishitachakravarthy/vector-db/pkg/version.BuiltAt=..."
var (
	Number  = "0.0.0-dev"
	Commit  = ""
	BuiltAt = ""
)

// Info describes one build.
type Info struct {
	Number   string `json:"number"`
	Commit   string `json:"commit,omitempty"`
	BuiltAt  string `json:"built_at,omitempty"`
	Runtime  string `json:"runtime"`
	Platform string `json:"platform"`
}

// Current returns the running binary's build info.
func Current() Info {
	return Info{
		Number:   Number,
		Commit:   Commit,
		BuiltAt:  BuiltAt,
		Runtime:  runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the info on one line for the version subcommand.
func (i Info) String() string {
	s := "vectordb " + i.Number
	if i.Commit != "" {
		s += "+" + i.Commit
	}
	s += fmt.Sprintf(" (%s, %s", i.Runtime, i.Platform)
	if i.BuiltAt != "" {
		s += ", built " + i.BuiltAt
	}
	return s + ")"
}
