// Command mkfs builds a filesystem image in the flat, read-only format
// fs.NewImage parses: a boot block of three counts, a dentry array
// filling out the rest of that block, then one 4 KiB block per inode
// header and one per data block. It walks a single host directory
// (no subdirectories; the format has none) and copies every regular
// file into the image, plus a synthetic "rtc" entry for the real-time
// clock pseudo-device every boot filesystem needs.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/limits"
	"github.com/bjackson/ece391mp/util"
)

const (
	dentrySize = 64
	bootHdrSz  = 64
	inodeHdrSz = 4
)

type fileEnt struct {
	name string
	typ  defs.Dtype_t
	data []byte
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: mkfs <output image> <skeleton dir>\n")
	os.Exit(1)
}

func readSkeleton(dir string) []fileEnt {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("mkfs: %v", err)
	}
	var files []fileEnt
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(os.Stderr, "mkfs: skipping %s: this filesystem format has no subdirectories\n", e.Name())
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Fatalf("mkfs: reading %s: %v", e.Name(), err)
		}
		files = append(files, fileEnt{name: e.Name(), typ: defs.DTypeFile, data: data})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	files = append(files, fileEnt{name: "rtc", typ: defs.DTypeRTC})
	return files
}

func main() {
	if len(os.Args) != 3 {
		usage()
	}
	out, skeldir := os.Args[1], os.Args[2]

	files := readSkeleton(skeldir)
	if len(files) > limits.MaxDentries {
		log.Fatalf("mkfs: %d entries exceeds the %d-entry dentry array", len(files), limits.MaxDentries)
	}

	numInodes := len(files)
	blocksPerFile := make([][]int, numInodes)
	nextBlock := 0
	for i, f := range files {
		nblocks := (len(f.data) + limits.BlockSize - 1) / limits.BlockSize
		blocks := make([]int, nblocks)
		for b := range blocks {
			blocks[b] = nextBlock
			nextBlock++
		}
		blocksPerFile[i] = blocks
	}
	numData := nextBlock

	buf := make([]byte, limits.BlockSize*(1+numInodes+numData))
	util.Writele32(buf, 0, uint32(numInodes))
	util.Writele32(buf, 4, uint32(numInodes))
	util.Writele32(buf, 8, uint32(numData))

	for i, f := range files {
		if len(f.name) > limits.FnameLen {
			log.Fatalf("mkfs: name %q longer than %d bytes", f.name, limits.FnameLen)
		}
		off := bootHdrSz + i*dentrySize
		copy(buf[off:off+limits.FnameLen], f.name)
		util.Writele32(buf, off+limits.FnameLen, uint32(f.typ))
		util.Writele32(buf, off+limits.FnameLen+4, uint32(i))
	}

	for i, f := range files {
		inodeOff := limits.BlockSize * (1 + i)
		util.Writele32(buf, inodeOff, uint32(len(f.data)))
		for b, block := range blocksPerFile[i] {
			util.Writele32(buf, inodeOff+inodeHdrSz+b*4, uint32(block))
		}
		for b, block := range blocksPerFile[i] {
			start := b * limits.BlockSize
			end := start + limits.BlockSize
			if end > len(f.data) {
				end = len(f.data)
			}
			dataOff := limits.BlockSize * (1 + numInodes + block)
			copy(buf[dataOff:], f.data[start:end])
		}
	}

	if err := os.WriteFile(out, buf, 0644); err != nil {
		log.Fatalf("mkfs: %v", err)
	}
}
