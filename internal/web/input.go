package web

import (
	"encoding/json"
	"fmt"
	"math"
	"mime"
	"net/http"
	"strconv"

	"github.com/vitos/cheeseball/internal/domain"
)

const maxBodyBytes = 1 << 20

// input holds request fields gathered from the query string, a urlencoded
// form or a flat JSON object.
type input map[string]string

func readInput(w http.ResponseWriter, r *http.Request) (input, error) {
	in := input{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			in[k] = v[0]
		}
	}
	if r.Body == nil || r.ContentLength == 0 {
		return in, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, domain.NewError(domain.ErrInvalidArgument, "Request body must be a JSON object")
		}
		for k, v := range body {
			switch val := v.(type) {
			case nil:
			case string:
				in[k] = val
			case json.Number:
				in[k] = val.String()
			case bool:
				in[k] = strconv.FormatBool(val)
			default:
				return nil, domain.NewError(domain.ErrInvalidArgument, fmt.Sprintf("field %q must be a scalar", k))
			}
		}
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && err != http.ErrNotMultipart {
			return nil, domain.NewError(domain.ErrInvalidArgument, "Malformed form body")
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				in[k] = v[0]
			}
		}
	}
	return in, nil
}

func (in input) str(name string) string {
	return in[name]
}

func (in input) required(name string) (string, error) {
	v := in[name]
	if v == "" {
		return "", domain.NewError(domain.ErrInvalidArgument, fmt.Sprintf("field %q is required", name))
	}
	return v, nil
}

func (in input) optional(name string) *string {
	v, ok := in[name]
	if !ok || v == "" {
		return nil
	}
	return &v
}

func (in input) float(name string) (float64, error) {
	raw, err := in.required(name)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, domain.NewError(domain.ErrInvalidArgument, fmt.Sprintf("field %q must be a number", name))
	}
	return f, nil
}

func (in input) boolean(name string, def bool) (bool, error) {
	raw, ok := in[name]
	if !ok || raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.NewError(domain.ErrInvalidArgument, fmt.Sprintf("field %q must be a boolean", name))
	}
	return b, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, domain.NewError(domain.ErrInvalidArgument, fmt.Sprintf("%s must be an integer", name))
	}
	return id, nil
}
