package models

import "encoding/json"

// Message kinds reported by Kind.
const (
	KindText = "text"
	KindFile = "file"
)

// Raw is an arbitrarily shaped message record as received from clients,
// legacy files or the distributed store.
type Raw map[string]any

// Message is the canonical chat message record.
type Message struct {
	ID        string
	Room      string
	Author    string
	Text      string
	Timestamp int64 // Unix ms

	FileBucket string
	FileObject string
	FileName   string
	FileMime   string
	FileSize   int64
}

// Kind reports "file" when the message carries an attachment name, "text" otherwise.
func (m Message) Kind() string {
	if m.FileName != "" {
		return KindFile
	}
	return KindText
}

// wireMessage is the persisted JSON layout. ts and timestamp always carry
// the same value so older readers keep working.
type wireMessage struct {
	ID         string  `json:"id"`
	Author     *string `json:"author"`
	Text       *string `json:"text"`
	TS         int64   `json:"ts"`
	Timestamp  int64   `json:"timestamp"`
	FileBucket *string `json:"file_bucket"`
	FileObject *string `json:"file_object"`
	FileName   *string `json:"file_name"`
	FileMime   *string `json:"file_mime"`
	FileSize   *int64  `json:"file_size"`
	Room       string  `json:"room"`
}

// MarshalJSON writes the persisted layout, with empty optional fields as null.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:         m.ID,
		Author:     nullable(m.Author),
		Text:       nullable(m.Text),
		TS:         m.Timestamp,
		Timestamp:  m.Timestamp,
		FileBucket: nullable(m.FileBucket),
		FileObject: nullable(m.FileObject),
		FileName:   nullable(m.FileName),
		FileMime:   nullable(m.FileMime),
		Room:       m.Room,
	}
	if m.FileSize != 0 {
		size := m.FileSize
		w.FileSize = &size
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the persisted layout. ts wins over timestamp.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts := w.TS
	if ts == 0 {
		ts = w.Timestamp
	}
	*m = Message{
		ID:         w.ID,
		Room:       w.Room,
		Author:     deref(w.Author),
		Text:       deref(w.Text),
		Timestamp:  ts,
		FileBucket: deref(w.FileBucket),
		FileObject: deref(w.FileObject),
		FileName:   deref(w.FileName),
		FileMime:   deref(w.FileMime),
	}
	if w.FileSize != nil {
		m.FileSize = *w.FileSize
	}
	return nil
}

// Fields returns the flat field map written into composite stores.
// Empty optional fields are left out.
func (m Message) Fields() map[string]any {
	fields := map[string]any{
		"id":        m.ID,
		"room":      m.Room,
		"ts":        m.Timestamp,
		"timestamp": m.Timestamp,
	}
	set := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	set("author", m.Author)
	set("text", m.Text)
	set("file_bucket", m.FileBucket)
	set("file_object", m.FileObject)
	set("file_name", m.FileName)
	set("file_mime", m.FileMime)
	if m.FileSize != 0 {
		fields["file_size"] = m.FileSize
	}
	return fields
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
