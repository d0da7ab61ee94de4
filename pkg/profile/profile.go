// Package profile stores named connection credentials in the user's home
// directory.
//
// A profile named "work" lives in ~/.db.py_work. The file holds the base64
// encoding, wrapped at 76 columns, of a JSON object with at least a "uri"
// field. Files written by other tools may carry extra fields; they are kept
// on load and written back on save.
package profile

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ha1tch/postmind/pkg/errors"
)

// Prefix is the file name prefix of a profile.
const Prefix = ".db.py_"

// Default is the profile used when none is named.
const Default = "default"

const lineWidth = 76

// Profile is a named connection credential.
type Profile struct {
	Name   string
	URI    string
	Fields map[string]interface{} // everything besides "uri"
}

// Store reads and writes profiles in a directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. An empty dir means the user's
// home directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCredentialMissing, "cannot locate home directory").Err()
		}
		dir = home
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory holding the profiles.
func (s *Store) Dir() string { return s.dir }

// Path returns the file backing profile name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, Prefix+name)
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.Credential(name, "invalid profile name").Err()
	}
	return nil
}

// Load reads profile name.
func (s *Store) Load(name string) (Profile, error) {
	if name == "" {
		name = Default
	}
	if err := checkName(name); err != nil {
		return Profile{}, err
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		reason := err.Error()
		if os.IsNotExist(err) {
			reason = "no profile file " + s.Path(name)
		}
		return Profile{}, errors.Credential(name, reason).WithOp("Store.Load").Err()
	}
	return decode(name, data)
}

func decode(name string, data []byte) (Profile, error) {
	// tolerate line wrapping and surrounding whitespace
	compact := strings.Join(strings.Fields(string(data)), "")
	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return Profile{}, errors.Wrap(err, errors.ErrCodeCredentialDecode, "profile is not valid base64").
			WithField("profile", name).Err()
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Profile{}, errors.Wrap(err, errors.ErrCodeCredentialDecode, "profile is not a JSON object").
			WithField("profile", name).Err()
	}
	uri, _ := fields["uri"].(string)
	if uri == "" {
		return Profile{}, errors.New(errors.ErrCodeCredentialDecode, "profile has no uri").
			WithField("profile", name).Err()
	}
	delete(fields, "uri")
	return Profile{Name: name, URI: uri, Fields: fields}, nil
}

// Encode renders p in the on-disk format.
func Encode(p Profile) ([]byte, error) {
	fields := make(map[string]interface{}, len(p.Fields)+1)
	for k, v := range p.Fields {
		fields[k] = v
	}
	fields["uri"] = p.URI

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCredentialWrite, "cannot encode profile").
			WithField("profile", p.Name).Err()
	}
	enc := base64.StdEncoding.EncodeToString(raw)

	var b strings.Builder
	for len(enc) > lineWidth {
		b.WriteString(enc[:lineWidth])
		b.WriteByte('\n')
		enc = enc[lineWidth:]
	}
	b.WriteString(enc)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// Save writes p, replacing any profile with the same name. The file is
// readable by the owner only.
func (s *Store) Save(p Profile) error {
	if p.Name == "" {
		p.Name = Default
	}
	if err := checkName(p.Name); err != nil {
		return err
	}
	if p.URI == "" {
		return errors.New(errors.ErrCodeCredentialWrite, "profile uri is empty").
			WithField("profile", p.Name).Err()
	}
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(p.Name), data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrCodeCredentialWrite, "cannot write profile").
			WithOp("Store.Save").
			WithField("profile", p.Name).Err()
	}
	return nil
}

// List returns the readable profiles sorted by name. Files that fail to
// decode are returned in skipped.
func (s *Store) List() (profiles []Profile, skipped []string, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeCredentialMissing, "cannot read profile directory").
			WithField("path", s.dir).Err()
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), Prefix) {
			continue
		}
		name := strings.TrimPrefix(e.Name(), Prefix)
		if name == "" {
			continue
		}
		p, err := s.Load(name)
		if err != nil {
			skipped = append(skipped, name)
			continue
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, skipped, nil
}

// Remove deletes profile name.
func (s *Store) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil {
		reason := err.Error()
		if os.IsNotExist(err) {
			reason = "no profile file " + s.Path(name)
		}
		return errors.Credential(name, reason).WithOp("Store.Remove").Err()
	}
	return nil
}
