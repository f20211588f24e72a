package cmd

import (
	"testing"

	"github.com/karstnet/karst/testing/assert"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func TestWrapFlags_CoversEveryFlagType(t *testing.T) {
	wrapped := WrapFlags([]cli.Flag{
		&cli.BoolFlag{Name: "bool"},
		&cli.DurationFlag{Name: "duration"},
		&cli.Float64Flag{Name: "float64"},
		&cli.IntFlag{Name: "int"},
		&cli.StringFlag{Name: "string"},
		&cli.StringSliceFlag{Name: "stringslice"},
		&cli.Uint64Flag{Name: "uint64"},
		&cli.UintFlag{Name: "uint"},
	})
	assert.Equal(t, 8, len(wrapped))
	for _, f := range wrapped {
		switch f.(type) {
		case *altsrc.BoolFlag,
			*altsrc.DurationFlag,
			*altsrc.Float64Flag,
			*altsrc.IntFlag,
			*altsrc.StringFlag,
			*altsrc.StringSliceFlag,
			*altsrc.Uint64Flag,
			*altsrc.UintFlag:
		default:
			t.Errorf("flag was not wrapped for alternative sources: %T", f)
		}
	}
}
