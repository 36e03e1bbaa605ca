package rest

import (
	"cmp"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Response is the final HTTP answer for one request.
type Response struct {
	Status  int
	Headers map[string]string
	Body    *string
}

// Shape turns a backend result into a response. offset is the pagination
// offset the client asked for. Shape never fails.
func Shape(res *Result, offset int64) *Response {
	if res == nil {
		res = &Result{}
	}

	status := cmp.Or(res.Status, http.StatusOK)
	pageTotal := res.PageTotal

	var bodyLen int
	if res.Body != nil {
		bodyLen = len(*res.Body) // Go strings are UTF-8 bytes
	}

	headers := map[string]string{
		HeaderContentLength: strconv.Itoa(bodyLen),
		HeaderContentType:   contentTypeJSON,
		HeaderRangeUnit:     rangeUnitItems,
		HeaderContentRange:  ContentRange(offset, offset+pageTotal-1, res.TotalResultSet),
	}
	// backend headers win, including over content-range
	for name, value := range res.Headers {
		headers[strings.ToLower(name)] = value
	}

	return &Response{Status: status, Headers: headers, Body: res.Body}
}

// ContentRange formats the content-range value for the items lower..upper
// out of total. A nil total means the backend did not count. Items 0..4 of 37
// give "0-4/37"; an empty page of an empty set gives "*/0"; items 0..2 of an
// uncounted set give "0-2/*".
func ContentRange(lower, upper int64, total *int64) string {
	rng := "*"
	if total != nil && *total != 0 && lower <= upper {
		rng = strconv.FormatInt(lower, 10) + "-" + strconv.FormatInt(upper, 10)
	}
	if total == nil {
		return rng + "/*"
	}
	return rng + "/" + strconv.FormatInt(*total, 10)
}

// Write sends the response to w.
func (resp *Response) Write(w http.ResponseWriter) error {
	h := w.Header()
	for name, value := range resp.Headers {
		h.Set(name, value)
	}
	w.WriteHeader(resp.Status)
	if resp.Body == nil {
		return nil
	}
	_, err := io.WriteString(w, *resp.Body)
	return err
}
