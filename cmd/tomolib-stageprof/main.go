// Command tomolib-stageprof profiles the stitch and reconstruction pipeline
// stage by stage. It is a development tool and ships separately from the
// main tomolib binary.
package main

import "github.com/example/go-tomolib/internal/bench/stageprof"

func main() {
	stageprof.Main()
}
