package handler

import (
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/ayesh156/roxeleye-crud/internal/http/response"
	"github.com/ayesh156/roxeleye-crud/internal/upload"
)

// multipartOverhead covers part headers and text fields on top of the
// file itself.
const multipartOverhead = 1 << 20

// form is a request body flattened to string fields plus an optional file.
// A key missing from values was not sent.
type form struct {
	values map[string]string
	file   *upload.Input
	close  func()
}

func (f *form) value(key string) *string {
	v, ok := f.values[key]
	if !ok {
		return nil
	}
	return &v
}

func (f *form) Close() {
	if f.close != nil {
		f.close()
	}
}

// parseForm reads a multipart, urlencoded, or JSON body. For multipart
// bodies the part named fileField becomes the upload. It writes the error
// response itself on failure.
func parseForm(w http.ResponseWriter, r *http.Request, fileField string, maxBytes int64) (*form, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	f := &form{values: map[string]string{}}
	switch mediaType {
	case "multipart/form-data":
		if r.ContentLength > maxBytes+multipartOverhead {
			response.Fail(w, r, upload.TooLargeError(maxBytes))
			return nil, false
		}
		// The memory budget equals the body cap, so file parts stay in
		// memory and nothing reaches disk before the type is checked.
		limit := maxBytes + multipartOverhead
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(limit); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				response.Fail(w, r, upload.TooLargeError(maxBytes))
				return nil, false
			}
			response.Error(w, r, http.StatusBadRequest, "Invalid multipart body")
			return nil, false
		}
		for k, vs := range r.MultipartForm.Value {
			if len(vs) > 0 {
				f.values[k] = vs[0]
			}
		}
		f.close = func() { _ = r.MultipartForm.RemoveAll() }
		if fileField == "" {
			return f, true
		}
		file, header, err := r.FormFile(fileField)
		if errors.Is(err, http.ErrMissingFile) {
			return f, true
		}
		if err != nil {
			f.Close()
			response.Error(w, r, http.StatusBadRequest, "Invalid multipart body")
			return nil, false
		}
		f.file = inputFromPart(file, header)
		closeForm := f.close
		f.close = func() {
			_ = file.Close()
			closeForm()
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			response.Error(w, r, http.StatusBadRequest, "Invalid request body")
			return nil, false
		}
		for k, vs := range r.PostForm {
			if len(vs) > 0 {
				f.values[k] = vs[0]
			}
		}
	default:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			response.Error(w, r, http.StatusBadRequest, "Invalid request body")
			return nil, false
		}
		for k, v := range raw {
			switch t := v.(type) {
			case string:
				f.values[k] = t
			case float64:
				f.values[k] = strconv.FormatFloat(t, 'f', -1, 64)
			case bool:
				f.values[k] = strconv.FormatBool(t)
			case nil:
			default:
				b, _ := json.Marshal(t)
				f.values[k] = string(b)
			}
		}
	}
	return f, true
}

func inputFromPart(file multipart.File, header *multipart.FileHeader) *upload.Input {
	return &upload.Input{
		Reader:      file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
	}
}
