package mtp

import (
	"encoding/json"
	"io"

	"github.com/rusq/encio"
)

// credsStorage is the encrypted on-device cache for the api_id/api_hash
// pair, so the user is asked for them only once.
type credsStorage struct {
	filename string
}

type creds struct {
	ApiID   int    `json:"api_id,omitempty"`
	ApiHash string `json:"api_hash,omitempty"`
}

func (cs credsStorage) IsAvailable() bool {
	return cs.filename != ""
}

func (cs credsStorage) Save(apiID int, apiHash string) error {
	f, err := encio.Create(cs.filename)
	if err != nil {
		return err
	}
	defer f.Close()

	return cs.write(f, creds{ApiID: apiID, ApiHash: apiHash})
}

func (cs credsStorage) write(w io.Writer, c creds) error {
	return json.NewEncoder(w).Encode(c)
}

func (cs credsStorage) Load() (int, string, error) {
	f, err := encio.Open(cs.filename)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	return cs.read(f)
}

func (cs credsStorage) read(r io.Reader) (int, string, error) {
	var c creds
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return 0, "", err
	}
	return c.ApiID, c.ApiHash, nil
}
