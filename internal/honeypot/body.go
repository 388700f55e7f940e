package honeypot

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/klyr/lure/internal/payload"
)

const defaultMultipartMemory = 1 << 20

// readFields returns the ordered field list of a decoy request: the query
// string for reads, the body otherwise. On a malformed body the returned
// list is empty and the error says why; the request is still recorded.
func readFields(r *http.Request, maxBodyBytes int64) (payload.Fields, error) {
	if isRead(r.Method) {
		return payload.ParseQuery(r.URL.RawQuery), nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return payload.Fields{}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		memory := maxBodyBytes
		if memory <= 0 {
			memory = defaultMultipartMemory
		}
		if err := r.ParseMultipartForm(memory); err != nil {
			return payload.Fields{}, fmt.Errorf("parse multipart: %w", err)
		}
		return payload.FromValues(r.MultipartForm.Value), nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return payload.Fields{}, err
	}

	switch {
	case mediaType == "application/json" || (mediaType == "" && looksLikeJSON(body)):
		fields, err := payload.ParseJSON(body)
		if err != nil {
			return payload.Fields{}, fmt.Errorf("parse json: %w", err)
		}
		return fields, nil
	default:
		return payload.ParseQuery(string(body)), nil
	}
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
