// Command depgraph emits a Graphviz DOT description of this module's
// direct dependency edges, read straight out of go.mod rather than by
// shelling out to the go tool, so it works offline and against a
// go.mod that hasn't been fetched yet.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"golang.org/x/mod/modfile"
)

func main() {
	path := "go.mod"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	mf, err := modfile.Parse(path, data, nil)
	if err != nil {
		log.Fatalf("depgraph: %v", err)
	}
	if mf.Module == nil {
		log.Fatal("depgraph: go.mod has no module statement")
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	root := mf.Module.Mod.Path
	fmt.Fprintln(w, "digraph deps {")
	for _, req := range mf.Require {
		style := ""
		if req.Indirect {
			style = " [style=dashed]"
		}
		fmt.Fprintf(w, "    %q -> %q%s;\n", root, req.Mod.String(), style)
	}
	fmt.Fprintln(w, "}")
}
