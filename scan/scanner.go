package scan

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/vehicle"
)

// maxKeyLength bounds a decoded value, record keys are short
const maxKeyLength = 768

type (
	// Decoder extracts the value of a barcode from an image
	Decoder interface {
		Decode(image []byte) (string, bool)
	}

	// Finder resolves a scanned key to a vehicle
	Finder interface {
		Get(ctx context.Context, id string) (vehicle.Vehicle, error)
	}

	// Selector receives the vehicle a scan resolved to
	Selector interface {
		Select(v vehicle.Vehicle) error
	}

	Scanner struct {
		decoder  Decoder
		finder   Finder
		selector Selector
		guard    *Guard
	}

	// TextDecoder accepts images that already carry the decoded value as
	// UTF-8 text, e.g. from clients that decode on the device.
	TextDecoder struct{}
)

func NewScanner(decoder Decoder, finder Finder, selector Selector) *Scanner {
	s := &Scanner{
		decoder:  decoder,
		finder:   finder,
		selector: selector,
	}
	s.guard = NewGuard(s.lookup, DefaultLookupTimeout)
	return s
}

// Process decodes image and starts a lookup for the value. It returns false if
// nothing could be decoded or a lookup is already in flight.
func (s *Scanner) Process(ctx context.Context, image []byte) bool {
	if ctx.Err() != nil {
		return false
	}

	key, ok := s.decoder.Decode(image)
	if !ok {
		log.Trace().Int("size", len(image)).Msg("nothing decoded")
		return false
	}
	return s.guard.Submit(strings.TrimSpace(key))
}

func (s *Scanner) Guard() *Guard {
	return s.guard
}

func (s *Scanner) Close() {
	s.guard.Close()
}

func (s *Scanner) lookup(ctx context.Context, key string) error {
	v, err := s.finder.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("scan.lookup '%s': %w", key, err)
	}

	if err := s.selector.Select(v); err != nil {
		return fmt.Errorf("scan.select '%s': %w", key, err)
	}

	log.Info().Str("vehicle", v.ID).Str("name", v.Name).Msg("vehicle scanned")
	return nil
}

func (TextDecoder) Decode(image []byte) (string, bool) {
	if len(image) == 0 || len(image) > maxKeyLength || !utf8.Valid(image) {
		return "", false
	}

	s := strings.TrimSpace(string(image))
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return "", false
		}
	}
	return s, true
}
