package cli

import (
	"testing"

	"github.com/fossas/circe/pkg/digest"
	"github.com/fossas/circe/pkg/source"
)

func testLayer(t *testing.T, hex string) source.Layer {
	t.Helper()
	for len(hex) < 64 {
		hex = "0" + hex
	}
	d, err := digest.Parse("sha256:" + hex)
	if err != nil {
		t.Fatalf("digest.Parse: %v", err)
	}
	return source.Layer{Digest: d}
}

func TestBuildStrategiesSquash(t *testing.T) {
	layers := []source.Layer{testLayer(t, "1"), testLayer(t, "2")}
	strategies, err := buildStrategies(layersSquash, layers)
	if err != nil {
		t.Fatalf("buildStrategies: %v", err)
	}
	if len(strategies) != 1 || len(strategies[0].Layers) != 2 {
		t.Fatalf("got %+v", strategies)
	}
}

func TestBuildStrategiesBase(t *testing.T) {
	layers := []source.Layer{testLayer(t, "1"), testLayer(t, "2")}
	strategies, err := buildStrategies(layersBase, layers)
	if err != nil {
		t.Fatalf("buildStrategies: %v", err)
	}
	if len(strategies) != 1 || len(strategies[0].Layers) != 1 {
		t.Fatalf("got %+v", strategies)
	}
	if !strategies[0].Layers[0].Digest.Equal(layers[0].Digest) {
		t.Errorf("base strategy should carry the first layer")
	}
}

func TestBuildStrategiesBaseAndSquashOther(t *testing.T) {
	layers := []source.Layer{testLayer(t, "1"), testLayer(t, "2"), testLayer(t, "3")}
	strategies, err := buildStrategies(layersBaseAndSquashOther, layers)
	if err != nil {
		t.Fatalf("buildStrategies: %v", err)
	}
	if len(strategies) != 2 {
		t.Fatalf("got %d strategies, want 2", len(strategies))
	}
	if len(strategies[0].Layers) != 1 || len(strategies[1].Layers) != 2 {
		t.Fatalf("got %+v", strategies)
	}
}

func TestBuildStrategiesSeparate(t *testing.T) {
	layers := []source.Layer{testLayer(t, "1"), testLayer(t, "2"), testLayer(t, "3")}
	strategies, err := buildStrategies(layersSeparate, layers)
	if err != nil {
		t.Fatalf("buildStrategies: %v", err)
	}
	if len(strategies) != 3 {
		t.Fatalf("got %d strategies, want 3", len(strategies))
	}
	for _, s := range strategies {
		if len(s.Layers) != 1 {
			t.Errorf("separate strategy should carry exactly one layer, got %d", len(s.Layers))
		}
	}
}

func TestBuildStrategiesNoLayers(t *testing.T) {
	if _, err := buildStrategies(layersSquash, nil); err == nil {
		t.Fatal("expected error for an image with zero layers")
	}
}

func TestBuildStrategiesUnknownMode(t *testing.T) {
	layers := []source.Layer{testLayer(t, "1")}
	if _, err := buildStrategies("bogus", layers); err == nil {
		t.Fatal("expected error for an unknown --layers mode")
	}
}
