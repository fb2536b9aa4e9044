//go:build cgo && !windows

package lwgeom

import "C"

//export goLwgeomReport
func goLwgeomReport(level C.int, msg *C.char) {
	report(int(level), C.GoString(msg))
}
