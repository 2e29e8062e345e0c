package stand

import (
	"fmt"

	"github.com/goliatone/go-stand/internal/hydrate"
)

// DecodeOption configures Decode and DecodePath.
type DecodeOption[T any] func(*decodeConfig[T])

type decodeConfig[T any] struct {
	storeID string
	opts    []hydrate.DecoderOption[T]
}

// WithStrictFields rejects document fields that T does not declare.
func WithStrictFields[T any]() DecodeOption[T] {
	return func(cfg *decodeConfig[T]) {
		cfg.opts = append(cfg.opts, hydrate.WithDisallowUnknownFields[T]())
	}
}

// WithNumbers keeps numbers as json.Number when decoding into untyped fields.
func WithNumbers[T any]() DecodeOption[T] {
	return func(cfg *decodeConfig[T]) {
		cfg.opts = append(cfg.opts, hydrate.WithUseNumber[T]())
	}
}

// WithNormalize rewrites a document before it is decoded.
func WithNormalize[T any](fn func(path string, doc map[string]any) (map[string]any, error)) DecodeOption[T] {
	return func(cfg *decodeConfig[T]) {
		if fn == nil {
			return
		}
		cfg.opts = append(cfg.opts, hydrate.WithPreHook[T](func(ctx hydrate.Context, doc map[string]any) (map[string]any, error) {
			return fn(ctx.Path, doc)
		}))
	}
}

// WithValidate checks the decoded value.
func WithValidate[T any](fn func(*T) error) DecodeOption[T] {
	return func(cfg *decodeConfig[T]) {
		if fn == nil {
			return
		}
		cfg.opts = append(cfg.opts, hydrate.WithPostHook[T](func(_ hydrate.Context, value *T) error {
			return fn(value)
		}))
	}
}

// WithStoreID labels decode errors with the owning store.
func WithStoreID[T any](id string) DecodeOption[T] {
	return func(cfg *decodeConfig[T]) {
		cfg.storeID = id
	}
}

// Decode converts a state document, or a handle or tracked view over one,
// into T through its JSON field tags. The document is never modified.
func Decode[T any](state any, opts ...DecodeOption[T]) (T, error) {
	return decodeAt[T](unwrapView(state), "", opts)
}

// DecodePath decodes the value found at path inside state.
func DecodePath[T any](state any, path string, opts ...DecodeOption[T]) (T, error) {
	value, ok := lookupPath(unwrapView(state), path)
	if !ok {
		var zero T
		return zero, fmt.Errorf("stand: decode: %w", &DereferenceError{Op: "read", Path: path, Reason: "value is absent"})
	}
	return decodeAt[T](value, path, opts)
}

func decodeAt[T any](value any, path string, opts []DecodeOption[T]) (T, error) {
	cfg := decodeConfig[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	decoder := hydrate.NewDecoder[T](cfg.opts...)
	return decoder.Decode(hydrate.Context{StoreID: cfg.storeID, Path: path}, value)
}

func unwrapView(state any) any {
	if tracked, ok := state.(*Tracked); ok {
		return tracked.Raw()
	}
	return ToRaw(state)
}
