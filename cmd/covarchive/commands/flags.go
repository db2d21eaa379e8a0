package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Sumatoshi-tech/covarchive/pkg/codec"
)

var _ pflag.Value = (*CodecFlag)(nil)

// CodecFlag is a pflag.Value accepting compressing codec names.
type CodecFlag struct {
	kind codec.Kind
	set  bool
}

// String implements pflag.Value.
func (f *CodecFlag) String() string {
	if !f.set {
		return ""
	}

	return f.kind.String()
}

// Set implements pflag.Value.
func (f *CodecFlag) Set(value string) error {
	kind, err := codec.ParseKind(value)
	if err != nil {
		return err
	}

	if !kind.Compressed() {
		return fmt.Errorf("%w: %q does not compress", codec.ErrUnknownKind, value)
	}

	f.kind = kind
	f.set = true

	return nil
}

// Type implements pflag.Value.
func (f *CodecFlag) Type() string {
	names := make([]string, 0, len(codec.Kinds()))

	for _, k := range codec.Kinds() {
		if k.Compressed() {
			names = append(names, k.String())
		}
	}

	return strings.Join(names, "|")
}

// Changed reports whether the flag was given.
func (f *CodecFlag) Changed() bool {
	return f.set
}

// Kind returns the parsed codec kind.
func (f *CodecFlag) Kind() codec.Kind {
	return f.kind
}
