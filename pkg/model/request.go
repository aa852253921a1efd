package model

// RevisionHead selects the newest revision on the server.
const RevisionHead = "#head"

// SyncRequest describes the workspace a sync call targets.
//
// Server, User and Password identify the session; Client, Stream and Root
// identify the workspace; FileSpec and Revision narrow what is transferred.
// Password is never logged or written to the journal.
type SyncRequest struct {
	Server   string `json:"server,omitempty" yaml:"server"`
	User     string `json:"user,omitempty" yaml:"user"`
	Password string `json:"-" yaml:"-"`
	Client   string `json:"client,omitempty" yaml:"client"`
	Stream   string `json:"stream,omitempty" yaml:"stream"`
	Root     string `json:"root,omitempty" yaml:"root"`
	FileSpec string `json:"file_spec,omitempty" yaml:"file_spec"`
	Revision string `json:"revision,omitempty" yaml:"revision"`
}

// EffectiveRevision returns Revision, or RevisionHead when unset.
func (r SyncRequest) EffectiveRevision() string {
	if r.Revision == "" {
		return RevisionHead
	}
	return r.Revision
}

// EffectiveFileSpec returns FileSpec, or "<stream>/..." when unset and a
// stream is known.
func (r SyncRequest) EffectiveFileSpec() string {
	if r.FileSpec != "" || r.Stream == "" {
		return r.FileSpec
	}
	return r.Stream + "/..."
}

// Fields returns the request as log fields with the password omitted.
func (r SyncRequest) Fields() map[string]any {
	return map[string]any{
		"server":   r.Server,
		"user":     r.User,
		"client":   r.Client,
		"stream":   r.Stream,
		"root":     r.Root,
		"filespec": r.EffectiveFileSpec(),
		"revision": r.EffectiveRevision(),
	}
}
