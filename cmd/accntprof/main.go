// Command accntprof converts a stream of per-task accounting dumps into
// a pprof profile, so task CPU time can be inspected with the standard
// pprof tooling instead of a bespoke format.
//
// Input is read from stdin (or a file given as the sole argument) as a
// sequence of records, each a 4-byte little-endian PID followed by the
// 32-byte rusage blob accnt.Accnt_t.ToRusage produces: two (seconds,
// microseconds) timeval pairs, user time then system time.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/pprof/profile"
)

const recordLen = 4 + 32

func readRusage(r io.Reader) (pid uint32, userNs, sysNs int64, err error) {
	var rec [recordLen]byte
	if _, err = io.ReadFull(r, rec[:]); err != nil {
		return 0, 0, 0, err
	}
	pid = binary.LittleEndian.Uint32(rec[0:4])
	body := rec[4:]
	usecs := int64(binary.LittleEndian.Uint64(body[0:8]))
	umics := int64(binary.LittleEndian.Uint64(body[8:16]))
	ssecs := int64(binary.LittleEndian.Uint64(body[16:24]))
	smics := int64(binary.LittleEndian.Uint64(body[24:32]))
	userNs = usecs*1e9 + umics*1000
	sysNs = ssecs*1e9 + smics*1000
	return pid, userNs, sysNs, nil
}

func main() {
	in := os.Stdin
	if len(os.Args) > 1 {
		f, err := os.Open(os.Args[1])
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		in = f
	}

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "user", Unit: "nanoseconds"},
			{Type: "system", Unit: "nanoseconds"},
		},
		PeriodType: &profile.ValueType{Type: "task", Unit: "count"},
		Period:     1,
	}

	fn := &profile.Function{ID: 1, Name: "task", SystemName: "task"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn}}}
	prof.Function = []*profile.Function{fn}
	prof.Location = []*profile.Location{loc}

	for {
		pid, userNs, sysNs, err := readRusage(in)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("accntprof: short record: %v", err)
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{userNs, sysNs},
			Label:    map[string][]string{"pid": {fmt.Sprint(pid)}},
		})
	}

	if err := prof.CheckValid(); err != nil {
		log.Fatalf("accntprof: built an invalid profile: %v", err)
	}
	if err := prof.Write(os.Stdout); err != nil {
		log.Fatal(err)
	}
}
