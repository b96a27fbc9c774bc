package importer

import (
	"github.com/rumor-ml/commons.systems/envelopes/internal/importer/csvdialects"
	"github.com/rumor-ml/commons.systems/envelopes/internal/importer/ofx"
)

// Builtin returns a registry with every built-in dialect registered. OFX
// comes first so its magic markers win before any CSV header sniffing runs.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(ofx.NewV1Parser())
	r.Register(ofx.NewV2Parser())
	r.Register(csvdialects.NewSofiParser())
	r.Register(csvdialects.NewChaseParser())
	r.Register(csvdialects.NewPayPalParser())
	r.Register(csvdialects.NewAllyParser())
	r.Register(csvdialects.NewVenmoParser())
	return r
}
