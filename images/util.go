package images

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// ComputeMatChecksum returns a hex MD5 digest of the Mat's pixel data, or "empty".
//
// It is used to check whether drawing modified a frame.
func ComputeMatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	data, err := mat.DataPtrUint8()
	if err != nil {
		return "unreadable"
	}
	hash := md5.New()
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil))
}

// MatSize returns the frame size as (width, height).
func MatSize(mat gocv.Mat) (width, height int) {
	return mat.Cols(), mat.Rows()
}
