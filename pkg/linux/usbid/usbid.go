package usbid

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the standard locations for the USB ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database caches vendor and product names from the USB ID database.
type Database struct {
	mu       sync.RWMutex
	vendors  map[uint16]string
	products map[uint32]string // vid<<16 | pid
}

// New returns an empty database.
func New() *Database {
	return &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
	}
}

// Load returns a database read from the first of paths that opens, or
// DefaultPaths when paths is empty. A database with no names is returned
// when none opens, so lookups degrade to the numeric IDs.
func Load(paths ...string) *Database {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	db := New()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		db.Parse(f)
		f.Close()
		break
	}
	return db
}

// Parse adds the vendor and product lines of an usb.ids file:
//
//	0483  STMicroelectronics
//		5720  Mass Storage Device
//
// Class, language and HID sections that follow the vendor list are skipped.
func (db *Database) Parse(r io.Reader) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var vid uint16
	inVendor := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] == '\t' {
			if !inVendor || strings.HasPrefix(line, "\t\t") {
				continue
			}
			if id, name, ok := splitEntry(line[1:]); ok {
				db.products[uint32(vid)<<16|uint32(id)] = name
			}
			continue
		}

		id, name, ok := splitEntry(line)
		inVendor = ok
		if ok {
			vid = id
			db.vendors[vid] = name
		}
	}
}

// splitEntry parses "xxxx  Name".
func splitEntry(line string) (uint16, string, bool) {
	if len(line) < 6 || line[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	return uint16(id), strings.TrimSpace(line[5:]), true
}

// Vendor returns the vendor name of vid, or "".
func (db *Database) Vendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the product name of vid:pid, or "".
func (db *Database) Product(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Len returns the number of vendors and products known.
func (db *Database) Len() (vendors, products int) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors), len(db.products)
}

// Describe returns "Vendor Product" for vid:pid. The device's own strings
// take precedence over the database, and numeric IDs fill any gap.
func (db *Database) Describe(vid, pid uint16, manufacturer, product string) string {
	if manufacturer == "" {
		manufacturer = db.Vendor(vid)
	}
	if manufacturer == "" {
		manufacturer = "vendor " + strconv.FormatUint(uint64(vid), 16)
	}
	if product == "" {
		product = db.Product(vid, pid)
	}
	if product == "" {
		product = "product " + strconv.FormatUint(uint64(pid), 16)
	}
	return manufacturer + " " + product
}
