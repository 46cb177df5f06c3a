package cryptox

// Opened is the outcome of opening an envelope: either Text or Err is set.
// It lets a caller keep rendering when a single payload is corrupt without
// mistaking a literal sentinel string for real content.
type Opened struct {
	Text string
	Err  error
}

// Open decrypts env under encodedKey and packs the result.
func Open(env Envelope, encodedKey string) Opened {
	text, err := Decrypt(env.Data, env.IV, encodedKey)
	if err != nil {
		return Opened{Err: err}
	}
	return Opened{Text: text}
}

// OK reports whether the payload was opened.
func (o Opened) OK() bool {
	return o.Err == nil
}

// Display returns the text, or CorruptPayload if opening failed.
func (o Opened) Display() string {
	if o.Err != nil {
		return CorruptPayload
	}
	return o.Text
}
