package retry

import (
	"errors"
	"io"
	"net"
	"net/url"
	"os"
)

// isTransportErr 识别无上游状态码的网络传输失败（连接、DNS、URL 层包装、
// 半途断开）。本地文件 I/O（PathError）不属于此类。
func isTransportErr(err error) bool {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return false
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
