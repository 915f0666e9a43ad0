package dav

import "net/http"

// SuppressStream reports whether a Stream body for status must be written as
// an empty buffered body. A streaming writer on 204 emits a bare chunked
// terminator without a Transfer-Encoding header; the protocol handler never
// sends content with 204, so the stream is known to be empty.
//
// 304 and 1xx are not included; they have not been observed to need it.
func SuppressStream(status int) bool {
	return status == http.StatusNoContent
}

// BufferedOrEmpty reports whether resp's body must go through the buffered
// path: every non-stream body, every stream known to be zero bytes, and
// streams on statuses for which SuppressStream holds.
func BufferedOrEmpty(resp *Response) bool {
	b := resp.Body
	if b.Kind() != BodyStream {
		return true
	}
	return b.KnownEmpty() || SuppressStream(resp.Status)
}
