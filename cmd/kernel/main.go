// Command kernel boots the simulator: it loads a filesystem image,
// wires every subsystem through kernel.New, puts stdin into raw mode
// the way a real console would deliver unbuffered keystrokes, and
// translates each byte read into the scancode sequence kernel.KeyPress
// expects. Output goes to the process's own stdout instead of a real
// VGA adapter; the terminal's screen buffer is still fully simulated
// and can be read back through Kernel_t for testing.
package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/bjackson/ece391mp/kernel"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: kernel <filesystem image>\n")
		os.Exit(1)
	}

	fsData, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	k, kerr := kernel.New(fsData)
	if kerr != 0 {
		log.Fatalf("kernel: invalid filesystem image: %v", kerr)
	}
	k.Boot()

	fd := int(os.Stdin.Fd())
	old, rawErr := term.MakeRaw(fd)
	if rawErr != nil {
		log.Fatalf("kernel: stdin is not a terminal: %v", rawErr)
	}
	defer term.Restore(fd, old)

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		for _, sc := range asciiToScancodes(buf[0]) {
			k.KeyPress(sc)
		}
	}
}
