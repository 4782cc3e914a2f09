package flickr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const statOK = "ok"

type searchEnvelope struct {
	Stat    *string      `json:"stat"`
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Photos  *photosBlock `json:"photos"`
}

type photosBlock struct {
	Pages json.RawMessage               `json:"pages"`
	Photo *[]map[string]json.RawMessage `json:"photo"`
}

type decodedPage struct {
	Pages  int
	Photos []Descriptor
}

// decodeSearchResponse validates the envelope shape. Anything unexpected is
// an error rather than an empty page.
func decodeSearchResponse(body []byte, urlKey string) (*decodedPage, error) {
	var env searchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed json: %w", err)
	}
	if env.Stat == nil {
		return nil, errors.New("missing stat")
	}
	if *env.Stat != statOK {
		return nil, fmt.Errorf("stat %q (code %d): %s", *env.Stat, env.Code, env.Message)
	}
	if env.Photos == nil {
		return nil, errors.New("missing photos")
	}
	if env.Photos.Photo == nil {
		return nil, errors.New("missing photos.photo")
	}

	pages, err := decodePages(env.Photos.Pages)
	if err != nil {
		return nil, err
	}

	raw := *env.Photos.Photo
	photos := make([]Descriptor, 0, len(raw))
	for _, fields := range raw {
		if fields == nil {
			return nil, errors.New("photo entry is not an object")
		}
		photos = append(photos, Descriptor{
			ID:  scalarString(fields["id"]),
			URL: scalarString(fields[urlKey]),
		})
	}

	return &decodedPage{Pages: pages, Photos: photos}, nil
}

// decodePages accepts a number or a numeric string; absent means zero
func decodePages(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return max(n, 0), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("photos.pages has unexpected type: %s", raw)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("photos.pages is not numeric: %q", s)
	}
	return max(n, 0), nil
}

// scalarString returns strings as-is and numbers in their JSON form.
// Other types yield "".
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
