//go:build cgo

package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
*/
import "C"
import (
	"unsafe"
)

// Functions returning *C.char return NULL on failure; functions returning int32 return
// non-zero. GetLastError explains the most recent failure.

func cString(s string, err error) *C.char {
	setLastError(err)
	if err != nil {
		return nil
	}
	return C.CString(s)
}

func status(err error) int32 {
	setLastError(err)
	if err != nil {
		return 1
	}
	return 0
}

//export Init
// Init opens the core under dataDir. configPath may be empty.
func Init(dataDir, configPath *C.char) int32 {
	return status(openCore(C.GoString(dataDir), C.GoString(configPath)))
}

//export Cleanup
func Cleanup() int32 {
	return status(closeCore())
}

//export GetLastError
func GetLastError() *C.char {
	return C.CString(getLastError())
}

//export SetOnline
// SetOnline reports the platform connectivity state. Going online starts a drain.
func SetOnline(online int32) int32 {
	return status(setOnline(online != 0))
}

//export CapturePhoto
func CapturePhoto(path, category, metadataJSON *C.char) *C.char {
	return cString(capturePhoto(C.GoString(path), C.GoString(category), C.GoString(metadataJSON)))
}

//export SubmitOrder
func SubmitOrder(orderJSON *C.char) *C.char {
	return cString(submitOrder(C.GoString(orderJSON)))
}

//export SaveFloorplan
func SaveFloorplan(floorplanJSON *C.char) *C.char {
	return cString(saveFloorplan(C.GoString(floorplanJSON)))
}

//export QueueList
func QueueList() *C.char {
	return cString(queueList())
}

//export QueueStats
func QueueStats() *C.char {
	return cString(queueStats())
}

//export ClearQueue
func ClearQueue() int32 {
	return status(clearQueue())
}

//export SyncNow
// SyncNow drains the queue and blocks until the pass ends.
func SyncNow() *C.char {
	return cString(syncNow())
}

//export Login
func Login(token *C.char) int32 {
	return status(login(C.GoString(token)))
}

//export Logout
func Logout() int32 {
	return status(logout())
}

//export NotificationList
func NotificationList() *C.char {
	return cString(notifications())
}

//export NotificationMarkRead
func NotificationMarkRead(id *C.char) int32 {
	return status(markNotificationRead(C.GoString(id)))
}

//export FreeString
// FreeString frees a string allocated by Go.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}
