package main

import (
	. "github.com/saylorsolutions/modmake"
)

const (
	lockinspectVersion = "0.1.0"
)

func main() {
	b := NewBuild()
	b.Generate().DependsOnRunner("tidy", "", Go().ModTidy())

	inspect := NewAppBuild("lockinspect", "cmd/lockinspect", lockinspectVersion)
	inspect.Build(func(gb *GoBuild) {
		gb.
			StripDebugSymbols().
			SetVariable("main", "version", lockinspectVersion).
			CgoEnabled(false)
	})
	for _, platform := range [][2]string{
		{"windows", "amd64"},
		{"linux", "amd64"},
		{"linux", "arm64"},
		{"darwin", "amd64"},
		{"darwin", "arm64"},
	} {
		inspect.Variant(platform[0], platform[1])
	}
	b.ImportApp(inspect)

	b.Execute()
}
