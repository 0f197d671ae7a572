package cli

import (
	"fmt"

	"github.com/fossas/circe/pkg/extract"
	"github.com/fossas/circe/pkg/source"
)

// layerModes enumerates the --layers values spec.md §6 lists.
const (
	layersSquash             = "squash"
	layersBase               = "base"
	layersSquashOther        = "squash-other"
	layersBaseAndSquashOther = "base-and-squash-other"
	layersSeparate           = "separate"
)

// buildStrategies turns a --layers mode and the source's resolved layer
// list into the ordered Strategy list extract.Run expects.
func buildStrategies(mode string, layers []source.Layer) ([]extract.Strategy, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("cli: image has no layers to extract")
	}

	switch mode {
	case "", layersSquash:
		return []extract.Strategy{extract.Squash(layers)}, nil
	case layersBase:
		return []extract.Strategy{extract.Separate(layers[0])}, nil
	case layersSquashOther:
		if len(layers) == 1 {
			return []extract.Strategy{extract.Squash(layers)}, nil
		}
		return []extract.Strategy{extract.Squash(layers[1:])}, nil
	case layersBaseAndSquashOther:
		if len(layers) == 1 {
			return []extract.Strategy{extract.Separate(layers[0])}, nil
		}
		return []extract.Strategy{
			extract.Separate(layers[0]),
			extract.Squash(layers[1:]),
		}, nil
	case layersSeparate:
		strategies := make([]extract.Strategy, len(layers))
		for i, l := range layers {
			strategies[i] = extract.Separate(l)
		}
		return strategies, nil
	default:
		return nil, fmt.Errorf("cli: unknown --layers mode %q", mode)
	}
}
