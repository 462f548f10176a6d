// Package usbid resolves USB vendor and product IDs to names using the
// usb.ids database shipped with most Linux distributions.
//
//	db := usbid.Load()
//	fmt.Println(db.Describe(0x0483, 0x5720, "", ""))
//
// All methods are safe for concurrent use.
package usbid
