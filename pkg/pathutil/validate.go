// Package pathutil validates and normalizes the names and paths in a sync request.
package pathutil

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/model"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateName checks a client workspace or user name.
func ValidateName(name string) error {
	if name == "" {
		return errclass.ErrConfigInvalid.WithMessage("name must not be empty")
	}

	name = norm.NFC.String(name)

	if strings.Contains(name, "..") {
		return errclass.ErrConfigInvalid.WithMessagef("name must not contain '..': %s", name)
	}
	if strings.HasPrefix(name, "-") {
		return errclass.ErrConfigInvalid.WithMessagef("name must not start with '-': %s", name)
	}
	if err := rejectControl(name); err != nil {
		return err
	}
	if !nameRegex.MatchString(name) {
		return errclass.ErrConfigInvalid.WithMessagef("name must match [a-zA-Z0-9._-]+: %s", name)
	}
	return nil
}

// ValidateDepotPath checks a stream or depot path such as //depot/main.
// Revision and wildcard characters are rejected; callers add those.
func ValidateDepotPath(p string) error {
	if !strings.HasPrefix(p, "//") {
		return errclass.ErrConfigInvalid.WithMessagef("depot path must start with '//': %s", p)
	}
	if err := rejectControl(p); err != nil {
		return err
	}
	if strings.ContainsAny(p, "@#%*") {
		return errclass.ErrConfigInvalid.WithMessagef("depot path must not contain @, #, %% or *: %s", p)
	}
	segments := strings.Split(strings.TrimPrefix(p, "//"), "/")
	for _, seg := range segments {
		switch seg {
		case "":
			return errclass.ErrConfigInvalid.WithMessagef("depot path has an empty segment: %s", p)
		case ".", "..", "...":
			return errclass.ErrConfigInvalid.WithMessagef("depot path must not contain %q: %s", seg, p)
		}
	}
	return nil
}

// ValidateRoot checks a workspace root directory.
func ValidateRoot(root string) error {
	if root == "" {
		return errclass.ErrConfigInvalid.WithMessage("workspace root must not be empty")
	}
	if err := rejectControl(root); err != nil {
		return err
	}
	if !filepath.IsAbs(root) {
		return errclass.ErrConfigInvalid.WithMessagef("workspace root must be absolute: %s", root)
	}
	return nil
}

// NormalizeRequest NFC-normalizes the textual fields of req and validates
// every field that is set. Unset fields are left for the backend to default
// or reject.
func NormalizeRequest(req model.SyncRequest) (model.SyncRequest, error) {
	req.User = norm.NFC.String(req.User)
	req.Client = norm.NFC.String(req.Client)
	req.Stream = norm.NFC.String(req.Stream)
	req.FileSpec = norm.NFC.String(req.FileSpec)
	if req.Root != "" {
		req.Root = filepath.Clean(norm.NFC.String(req.Root))
	}

	if req.User != "" {
		if err := ValidateName(req.User); err != nil {
			return req, err
		}
	}
	if req.Client != "" {
		if err := ValidateName(req.Client); err != nil {
			return req, err
		}
	}
	if req.Stream != "" {
		if err := ValidateDepotPath(req.Stream); err != nil {
			return req, err
		}
	}
	if req.Root != "" {
		if err := ValidateRoot(req.Root); err != nil {
			return req, err
		}
	}
	if req.Revision != "" && !strings.HasPrefix(req.Revision, "#") && !strings.HasPrefix(req.Revision, "@") {
		return req, errclass.ErrConfigInvalid.WithMessagef("revision must start with '#' or '@': %s", req.Revision)
	}
	return req, nil
}

func rejectControl(s string) error {
	for _, r := range s {
		if unicode.IsControl(r) {
			return errclass.ErrConfigInvalid.WithMessagef("must not contain control characters: %q", s)
		}
	}
	return nil
}
