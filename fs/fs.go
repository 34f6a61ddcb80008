// Package fs implements the read-only, single-directory filesystem:
// a boot block naming dentry/inode/data counts, a flat dentry array,
// an inode region of block-index arrays, and a data region. The
// on-disk layout is boot block | inode region | data region, each
// piece aligned to a 4 KiB block, matching the original image format.
package fs

import (
	"fmt"
	"sync"

	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/fdops"
	"github.com/bjackson/ece391mp/hashtable"
	"github.com/bjackson/ece391mp/limits"
	"github.com/bjackson/ece391mp/ustr"
	"github.com/bjackson/ece391mp/util"
)

const (
	dentrySize   = 64
	dentryNameSz = limits.FnameLen
	dentryHdrSz  = dentrySize - dentryNameSz - 4 - 4 // reserved bytes
	bootHdrSz    = 64                                // counts + reserved, before the dentry array
	inodeHdrSz   = 4                                  // the length field
	maxInodeBlks = (limits.BlockSize - inodeHdrSz) / 4
)

/// Dentry_t is one decoded directory entry.
type Dentry_t struct {
	Name  ustr.Ustr
	Type  defs.Dtype_t
	Inode int
}

/// Image_t is a parsed, read-only filesystem image.
type Image_t struct {
	data        []byte
	numDentries int
	numInodes   int
	numData     int
	byName      *hashtable.Hashtable_t
}

/// NewImage parses data as a filesystem image. It returns EINVAL if data
/// is too small to hold a boot block or reports more dentries than the
/// format allows.
func NewImage(data []byte) (*Image_t, defs.Err_t) {
	if len(data) < limits.BlockSize {
		return nil, defs.EINVAL
	}
	img := &Image_t{data: data}
	img.numDentries = int(util.Readle32(data, 0))
	img.numInodes = int(util.Readle32(data, 4))
	img.numData = int(util.Readle32(data, 8))
	if img.numDentries > limits.MaxDentries {
		return nil, defs.EINVAL
	}
	need := limits.BlockSize + img.numInodes*limits.BlockSize + img.numData*limits.BlockSize
	if len(data) < need {
		return nil, defs.EINVAL
	}

	img.byName = hashtable.MkHash(64)
	for i := 0; i < img.numDentries; i++ {
		d := img.dentryAt(i)
		if len(d.Name) == 0 {
			continue
		}
		img.byName.Set(d.Name, i)
	}
	return img, 0
}

func (img *Image_t) dentryAt(i int) Dentry_t {
	off := bootHdrSz + i*dentrySize
	raw := img.data[off : off+dentrySize]
	name := ustr.MkUstrSlice(raw[:dentryNameSz])
	typ := defs.Dtype_t(util.Readle32(raw, dentryNameSz))
	inode := int(util.Readle32(raw, dentryNameSz+4))
	return Dentry_t{Name: append(ustr.Ustr(nil), name...), Type: typ, Inode: inode}
}

/// ReadDentryByName looks up name, comparing at most 32 bytes as names
/// exactly 32 bytes wide carry no terminator.
func (img *Image_t) ReadDentryByName(name ustr.Ustr) (Dentry_t, defs.Err_t) {
	key := name
	if len(key) > dentryNameSz {
		key = key[:dentryNameSz]
	}
	v, ok := img.byName.Get(key)
	if !ok {
		return Dentry_t{}, defs.ENOENT
	}
	return img.dentryAt(v.(int)), 0
}

/// ReadDentryByIndex returns the i'th dentry in boot-block order.
func (img *Image_t) ReadDentryByIndex(i int) (Dentry_t, defs.Err_t) {
	if i < 0 || i >= img.numDentries {
		return Dentry_t{}, defs.ENOENT
	}
	return img.dentryAt(i), 0
}

/// NumDentries reports the directory entry count the boot block named.
func (img *Image_t) NumDentries() int {
	return img.numDentries
}

func (img *Image_t) inodeBytes(inode int) []byte {
	if inode < 0 || inode >= img.numInodes {
		panic(fmt.Sprintf("fs: inode %d out of range [0, %d)", inode, img.numInodes))
	}
	off := limits.BlockSize + inode*limits.BlockSize
	return img.data[off : off+limits.BlockSize]
}

func (img *Image_t) dataBlockOffset(block int) int {
	if block < 0 || block >= img.numData {
		panic(fmt.Sprintf("fs: data block %d out of range [0, %d)", block, img.numData))
	}
	return limits.BlockSize*(1+img.numInodes) + block*limits.BlockSize
}

/// InodeLength returns the byte length recorded in an inode's header.
func (img *Image_t) InodeLength(inode int) int {
	return int(util.Readle32(img.inodeBytes(inode), 0))
}

/// ReadData copies up to len(buf) bytes from inode starting at offset,
/// crossing block boundaries via the inode's block-index array. It
/// returns 0 at EOF and never reads past the inode's recorded length;
/// a corrupt block index is a programming-error panic, not an Err_t.
func (img *Image_t) ReadData(inode int, offset int, buf []byte) int {
	ib := img.inodeBytes(inode)
	length := int(util.Readle32(ib, 0))
	if offset < 0 || offset >= length {
		return 0
	}
	toRead := util.Min(len(buf), length-offset)
	n := 0
	for n < toRead {
		fileBlock := (offset + n) / limits.BlockSize
		blockOff := (offset + n) % limits.BlockSize
		if fileBlock >= maxInodeBlks {
			panic("fs: inode references more blocks than the format allows")
		}
		dataBlock := int(util.Readle32(ib, inodeHdrSz+fileBlock*4))
		base := img.dataBlockOffset(dataBlock)
		chunk := util.Min(limits.BlockSize-blockOff, toRead-n)
		copy(buf[n:n+chunk], img.data[base+blockOff:base+blockOff+chunk])
		n += chunk
	}
	return n
}

/// File_t is a read-only, positioned handle onto one inode's data,
/// installed behind a file descriptor by open().
type File_t struct {
	mu  sync.Mutex
	img *Image_t
	ino int
	pos int
}

/// NewFileReader returns a fresh, zero-positioned handle onto inode.
func (img *Image_t) NewFileReader(inode int) *File_t {
	return &File_t{img: img, ino: inode}
}

/// Read implements fs_read: it copies from the current position and
/// advances it by the number of bytes copied.
func (f *File_t) Read(buf []byte) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.img.ReadData(f.ino, f.pos, buf)
	f.pos += n
	return n, 0
}

/// Write implements fs_write: it always fails, the image is read-only.
func (f *File_t) Write(buf []byte) (int, defs.Err_t) {
	return 0, defs.EROFS
}

/// Seek repositions the read cursor, used by execute to re-read a
/// program from the start after checking its ELF header.
func (f *File_t) Seek(pos int) {
	f.mu.Lock()
	f.pos = pos
	f.mu.Unlock()
}

/// Length returns the inode's total byte length.
func (f *File_t) Length() int {
	return f.img.InodeLength(f.ino)
}

/// Close is a no-op; a File_t owns no kernel resources to release.
func (f *File_t) Close() defs.Err_t {
	return 0
}

var _ fdops.Fdops_i = (*File_t)(nil)

/// Dir_t is a directory cursor: each Read call yields the next
/// filename, at most 32 bytes, then 0 at end, as fs_dir_read requires.
type Dir_t struct {
	mu     sync.Mutex
	img    *Image_t
	cursor int
}

/// NewDirReader returns a fresh directory cursor positioned at entry 0.
func (img *Image_t) NewDirReader() *Dir_t {
	return &Dir_t{img: img}
}

/// Read copies the next directory entry's name into buf and advances
/// the cursor, returning 0 once every entry has been yielded.
func (d *Dir_t) Read(buf []byte) (int, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursor >= d.img.numDentries {
		return 0, 0
	}
	dent, _ := d.img.ReadDentryByIndex(d.cursor)
	d.cursor++
	return copy(buf, dent.Name), 0
}

/// Write implements fs_write for a directory handle: it always fails.
func (d *Dir_t) Write(buf []byte) (int, defs.Err_t) {
	return 0, defs.EROFS
}

/// Close is a no-op; a Dir_t owns no kernel resources to release.
func (d *Dir_t) Close() defs.Err_t {
	return 0
}

var _ fdops.Fdops_i = (*Dir_t)(nil)
