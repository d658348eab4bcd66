package replay

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/planarnexus/nexus-server/internal/game/state"
)

const (
	// FormatVersion is written into every export.
	FormatVersion = 1

	// MaxShareLength bounds the encoded share link so it still fits in a URL.
	MaxShareLength = 8000

	// MaxShareExpanded bounds the decompressed payload of a share link.
	MaxShareExpanded = 1 << 20
)

var (
	ErrShareTooLarge      = errors.New("replay too large to share as a link")
	ErrUnsupportedVersion = errors.New("unsupported replay version")
)

type exportEnvelope struct {
	Version int     `json:"version"`
	Replay  *Replay `json:"replay"`
}

// Export encodes a replay, including every resulting state, as JSON.
func Export(r *Replay) ([]byte, error) {
	data, err := json.MarshalIndent(exportEnvelope{Version: FormatVersion, Replay: r}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode replay: %w", err)
	}
	return data, nil
}

// Import decodes a replay produced by Export.
func Import(data []byte) (*Replay, error) {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode replay: %w", err)
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if env.Replay == nil {
		return nil, errors.New("failed to decode replay: missing body")
	}
	normalize(env.Replay)
	return env.Replay, nil
}

// Minified wire form. Keys are single letters; timestamps are Unix millis.
// Resulting states are dropped and must be rebuilt by re-applying actions.
type miniReplay struct {
	V int          `json:"v"`
	I string       `json:"i"`
	M miniMetadata `json:"m"`
	A []miniAction `json:"a"`
	C int64        `json:"c"`
}

type miniMetadata struct {
	G string   `json:"g"`
	F string   `json:"f,omitempty"`
	P []string `json:"p"`
	S int64    `json:"s"`
	E int64    `json:"e,omitempty"`
	W string   `json:"w,omitempty"`
}

type miniAction struct {
	I string            `json:"i"`
	T string            `json:"t"`
	P string            `json:"p,omitempty"`
	D map[string]string `json:"d,omitempty"`
	S int64             `json:"s"`
	N int64             `json:"n"`
	X string            `json:"x,omitempty"`
}

// Minify encodes the actions of a replay in the compact share form.
func Minify(r *Replay) ([]byte, error) {
	m := miniReplay{
		V: FormatVersion,
		I: r.ID,
		M: miniMetadata{
			G: r.Metadata.GameID,
			F: r.Metadata.Format,
			P: r.Metadata.Players,
			S: millis(r.Metadata.StartedAt),
			E: millis(r.Metadata.EndedAt),
			W: r.Metadata.Winner,
		},
		A: make([]miniAction, len(r.Actions)),
		C: millis(r.CreatedAt),
	}
	for i, rec := range r.Actions {
		a := rec.Action
		m.A[i] = miniAction{
			I: a.ID,
			T: string(a.Type),
			P: a.PlayerID,
			D: a.Data,
			S: millis(a.Timestamp),
			N: a.Sequence,
			X: rec.Description,
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode minified replay: %w", err)
	}
	return data, nil
}

// Expand decodes the compact share form.
func Expand(data []byte) (*Replay, error) {
	var m miniReplay
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode minified replay: %w", err)
	}
	if m.V != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.V)
	}

	r := &Replay{
		ID: m.I,
		Metadata: Metadata{
			GameID:    m.M.G,
			Format:    m.M.F,
			Players:   m.M.P,
			StartedAt: fromMillis(m.M.S),
			EndedAt:   fromMillis(m.M.E),
			Winner:    m.M.W,
		},
		Actions:   make([]RecordedAction, len(m.A)),
		CreatedAt: fromMillis(m.C),
	}
	for i, a := range m.A {
		r.Actions[i] = RecordedAction{
			Action: state.GameAction{
				ID:        a.I,
				Type:      state.ActionType(a.T),
				PlayerID:  a.P,
				Data:      a.D,
				Timestamp: fromMillis(a.S),
				Sequence:  a.N,
			},
			Description: a.X,
		}
	}
	normalize(r)
	if n := len(r.Actions); n > 0 {
		r.LastModifiedAt = r.Actions[n-1].Action.Timestamp
	} else {
		r.LastModifiedAt = r.CreatedAt
	}
	return r, nil
}

// EncodeShareLink returns the minified replay gzipped and base64url encoded.
// Links longer than maxLength (MaxShareLength when zero) fail with
// ErrShareTooLarge.
func EncodeShareLink(r *Replay, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = MaxShareLength
	}
	data, err := Minify(r)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("failed to compress replay: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to compress replay: %w", err)
	}

	link := base64.RawURLEncoding.EncodeToString(buf.Bytes())
	if len(link) > maxLength {
		return "", fmt.Errorf("%w: %d characters, limit %d", ErrShareTooLarge, len(link), maxLength)
	}
	return link, nil
}

// DecodeShareLink reverses EncodeShareLink. Links over MaxShareLength, or
// that expand past MaxShareExpanded, fail with ErrShareTooLarge.
func DecodeShareLink(link string) (*Replay, error) {
	if len(link) > MaxShareLength {
		return nil, fmt.Errorf("%w: %d characters, limit %d", ErrShareTooLarge, len(link), MaxShareLength)
	}
	raw, err := base64.RawURLEncoding.DecodeString(link)
	if err != nil {
		return nil, fmt.Errorf("failed to decode share link: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, MaxShareExpanded+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress share link: %w", err)
	}
	if len(data) > MaxShareExpanded {
		return nil, fmt.Errorf("%w: expands past %d bytes", ErrShareTooLarge, MaxShareExpanded)
	}
	return Expand(data)
}

func normalize(r *Replay) {
	if r.Actions == nil {
		r.Actions = make([]RecordedAction, 0)
	}
	r.TotalActions = len(r.Actions)
	if r.CurrentPosition >= r.TotalActions || r.CurrentPosition < 0 {
		r.CurrentPosition = 0
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
