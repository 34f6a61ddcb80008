// Command chentry rewrites the entry address recorded in an ELF32
// executable's header, the same patch step the original build used to
// bind a freshly linked kernel image to its load address.
package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strconv"
)

// entryOff is the byte offset of e_entry in an ELF32 header: the
// 16-byte ident block plus e_type, e_machine, and e_version.
const entryOff = 16 + 2 + 2 + 4

func usage(me string) {
	fmt.Printf("%s <filename> <addr>\n\nChange the ELF32 entry point of <filename> to <addr>\n", me)
	os.Exit(1)
}

func chkELF(eh *elf.FileHeader) {
	if eh.Class != elf.ELFCLASS32 {
		log.Fatal("not a 32 bit elf")
	}
	if eh.Data != elf.ELFDATA2LSB {
		log.Fatal("not little-endian")
	}
	if eh.Type != elf.ET_EXEC {
		log.Fatal("not an executable elf")
	}
	if eh.Machine != elf.EM_386 {
		log.Fatal("not an i386 elf")
	}
}

func parseAddr(s string) (uint32, error) {
	a, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint32(a), nil
}

func main() {
	if len(os.Args) != 3 {
		usage(os.Args[0])
	}
	fn := os.Args[1]
	addr, err := parseAddr(os.Args[2])
	if err != nil {
		log.Fatal(err)
	}

	f, err := os.OpenFile(fn, os.O_RDWR, 0)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		log.Fatal(err)
	}
	chkELF(&ef.FileHeader)

	fmt.Printf("using address %#x\n", addr)

	var entry [4]byte
	binary.LittleEndian.PutUint32(entry[:], addr)
	if _, err := f.WriteAt(entry[:], entryOff); err != nil {
		log.Fatal(err)
	}
}
